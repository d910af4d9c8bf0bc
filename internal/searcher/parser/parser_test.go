package parser

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

func TestParse(t *testing.T) {
	p := New(nil)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "Fox", "text:fox"},
		{"implicit or", "apple pie", "text:apple text:pie"},
		{"required and prohibited", "+apple -tart", "+text:apple -text:tart"},
		{"and keyword", "apple AND pie", "+text:apple +text:pie"},
		{"or keyword", "apple OR pie", "text:apple text:pie"},
		{"not keyword", "apple NOT tart", "text:apple -text:tart"},
		{"and not", "apple AND NOT tart", "+text:apple -text:tart"},
		{"phrase", `"Quick Fox"`, `text:"quick fox"`},
		{"phrase stop words removed", `"the quick fox"`, `text:"quick fox"`},
		{"single word phrase", `"fox"`, "text:fox"},
		{"prefix", "test*", "text:test*"},
		{"wildcard", "te?t", "text:te?t"},
		{"leading wildcard", "*ing", "text:*ing"},
		{"inner star", "t*st", "text:t*st"},
		{"fuzzy default", "tost~", "text:tost~2"},
		{"fuzzy explicit", "tost~1", "text:tost~1"},
		{"field override", "title:fox", "title:fox"},
		{"field phrase", `title:"red fox"`, `title:"red fox"`},
		{"field group", "title:(red fox)", "title:red title:fox"},
		{"group", "+(apple pie) -tart", "+(text:apple text:pie) -text:tart"},
		{"stop word dropped", "the fox", "text:fox"},
		{"only stop words", "the a", ""},
		{"multi token word", "e-mail", "text:e text:mail"},
		{"escaped colon", `foo\:bar`, "text:foo text:bar"},
		{"escaped wildcard in pattern", `a\*b*`, ""},
		{"keyword prefix is a word", "ANDROID", "text:android"},
		{"lone prohibited", "-tart", "-text:tart"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Parse("text", tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got := q.String(); got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTypes(t *testing.T) {
	p := New(nil)
	q, _ := p.Parse("text", "test*")
	if _, ok := q.(query.Prefix); !ok {
		t.Errorf("test* parsed as %T, want query.Prefix", q)
	}
	q, _ = p.Parse("text", "tost~1")
	f, ok := q.(query.Fuzzy)
	if !ok || f.MaxEdits != 1 || f.Text != "tost" {
		t.Errorf("tost~1 parsed as %#v", q)
	}
	q, _ = p.Parse("text", "the")
	if b, ok := q.(query.Boolean); !ok || len(b.Clauses) != 0 {
		t.Errorf("stop-word query parsed as %#v, want empty Boolean", q)
	}
}

func TestParseErrors(t *testing.T) {
	p := New(nil)
	tests := []struct {
		input  string
		offset int
	}{
		{"", 0},
		{"   ", 0},
		{`fox "quick`, 4},
		{"(apple pie", 0},
		{"apple pie)", 9},
		{"a (b (c)", 2},
		{"()", 0},
		{"apple +", 6},
		{"apple -", 6},
		{"+ apple", 0},
		{"AND apple", 0},
		{"apple AND", 6},
		{"apple AND OR pie", 10},
		{"NOT", 0},
		{"title:", 6},
		{"title: )", 7},
		{"tost~3", 5},
		{"tost~1x", 4},
		{`fox\`, 3},
		{`"fox\`, 4},
		{"te*t~1", 0},
		{`"quick fox"~2`, 11},
		{"NOT -fox", 4},
	}
	for _, tt := range tests {
		_, err := p.Parse("text", tt.input)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", tt.input)
			continue
		}
		if !errors.Is(err, apperrors.ErrQuerySyntax) {
			t.Errorf("Parse(%q) error %v does not wrap ErrQuerySyntax", tt.input, err)
		}
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("Parse(%q) error %T is not *SyntaxError", tt.input, err)
		}
		if se.Offset != tt.offset {
			t.Errorf("Parse(%q) offset = %d, want %d (%s)", tt.input, se.Offset, tt.offset, se.Message)
		}
		if se.Input != tt.input {
			t.Errorf("Input = %q, want %q", se.Input, tt.input)
		}
	}
}

func TestBuild(t *testing.T) {
	p := New(analyzer.New())
	tests := []struct {
		kind query.Kind
		text string
		want string
	}{
		{query.KindTerm, "Fox", "text:fox"},
		{query.KindTerm, "quick fox", "text:quick fox"},
		{query.KindPrefix, "Tes", "text:tes*"},
		{query.KindPrefix, "tes*", "text:tes*"},
		{query.KindWildcard, "T?st", "text:t?st"},
		{query.KindFuzzy, "tost", "text:tost~2"},
		{query.KindPhrase, "the Quick fox", `text:"quick fox"`},
		{query.KindPhrase, "fox", "text:fox"},
		{query.KindPhrase, "the", ""},
		{query.KindBoolean, "+apple -tart", "+text:apple -text:tart"},
		{query.KindOther, "apple pie", "text:apple text:pie"},
	}
	for _, tt := range tests {
		q, err := p.Build(tt.kind, "text", tt.text)
		if err != nil {
			t.Fatalf("Build(%v, %q): %v", tt.kind, tt.text, err)
		}
		if got := q.String(); got != tt.want {
			t.Errorf("Build(%v, %q) = %q, want %q", tt.kind, tt.text, got, tt.want)
		}
	}
	if _, err := p.Build(query.KindBoolean, "text", "(broken"); !errors.Is(err, apperrors.ErrQuerySyntax) {
		t.Errorf("Build boolean with bad syntax: err = %v", err)
	}
}

func TestBuildRejectsBlankTypedText(t *testing.T) {
	p := New(analyzer.New())
	tests := []struct {
		kind query.Kind
		text string
	}{
		{query.KindTerm, ""},
		{query.KindPrefix, ""},
		{query.KindPrefix, "  "},
		{query.KindPrefix, "*"},
		{query.KindWildcard, "\t"},
		{query.KindFuzzy, ""},
		{query.KindFuzzy, " "},
		{query.KindPhrase, ""},
	}
	for _, tt := range tests {
		q, err := p.Build(tt.kind, "text", tt.text)
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Build(%v, %q) = %v, %v; want ErrInvalidInput", tt.kind, tt.text, q, err)
		}
	}
	for _, kind := range []query.Kind{query.KindBoolean, query.KindOther} {
		if _, err := p.Build(kind, "text", ""); !errors.Is(err, apperrors.ErrQuerySyntax) {
			t.Errorf("Build(%v, \"\") err = %v, want ErrQuerySyntax", kind, err)
		}
	}
}

func TestBuildStemming(t *testing.T) {
	p := New(analyzer.New(analyzer.WithStemming(true)))
	q, err := p.Build(query.KindTerm, "text", "Running")
	if err != nil {
		t.Fatal(err)
	}
	if got := q.String(); got != "text:run" {
		t.Errorf("stemmed term = %q, want text:run", got)
	}
}
