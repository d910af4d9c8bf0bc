package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := Start(context.Background(), "search", "req-1")
	childCtx, parse := Start(ctx, "parse", "ignored")
	parse.SetAttr("kind", "TERM")
	parse.End()
	_, exec := Start(ctx, "execute", "")
	exec.End()

	if FromContext(childCtx) != parse || FromContext(ctx) != root {
		t.Fatal("context does not carry the current span")
	}
	if parse.TraceID != "req-1" {
		t.Errorf("child trace id = %q", parse.TraceID)
	}
	if got := root.Children(); len(got) != 2 || got[0] != parse || got[1] != exec {
		t.Errorf("children = %v", got)
	}

	var buf bytes.Buffer
	root.Finish(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	if strings.Count(out, "msg=span") != 3 || !strings.Contains(out, "kind=TERM") || !strings.Contains(out, "depth=1") {
		t.Errorf("log output:\n%s", out)
	}
}

func TestFinishQuietAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	_, span := Start(context.Background(), "search", "x")
	span.Finish(slog.New(slog.NewTextHandler(&buf, nil)))
	if buf.Len() != 0 {
		t.Errorf("logged at info level: %s", buf.String())
	}
	d := span.Duration()
	span.End()
	if span.Duration() != d {
		t.Error("End changed a finished span")
	}
}

func TestFromContextEmpty(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("empty context has a span")
	}
}
