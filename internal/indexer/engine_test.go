package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() config.IndexConfig {
	return config.Default().Index
}

func TestIndexDocument(t *testing.T) {
	m := metrics.New()
	e := NewEngine(testConfig(), m)
	ctx := context.Background()

	id, err := e.IndexDocument(ctx, index.Document{"title": "t1", "text": "hello world"})
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	doc, err := e.Document(id)
	if err != nil || doc["title"] != "t1" {
		t.Fatalf("Document = %v, %v", doc, err)
	}
	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 1 {
		t.Errorf("docs indexed metric = %v", got)
	}

	if _, err := e.IndexDocument(ctx, index.Document{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty document err = %v", err)
	}
	if got := testutil.ToFloat64(m.IndexRejectedTotal.WithLabelValues("invalid")); got != 1 {
		t.Errorf("rejected metric = %v", got)
	}
}

func TestIndexBatchCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDocuments = 1
	m := metrics.New()
	e := NewEngine(cfg, m)

	ids, err := e.IndexBatch(context.Background(), []index.Document{{"text": "a1"}, {"text": "a2"}})
	if !errors.Is(err, apperrors.ErrCapacityExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("committed = %v", ids)
	}
	if got := testutil.ToFloat64(m.IndexRejectedTotal.WithLabelValues("capacity")); got != 1 {
		t.Errorf("capacity metric = %v", got)
	}
}

func TestDeleteTriggersCompaction(t *testing.T) {
	cfg := testConfig()
	cfg.CompactThreshold = 2
	e := NewEngine(cfg, nil)
	ctx := context.Background()

	ids, err := e.IndexBatch(ctx, []index.Document{{"text": "one"}, {"text": "two"}, {"text": "three"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteDocument(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if e.Stats().PendingPurge != 1 {
		t.Fatalf("pending purge = %d", e.Stats().PendingPurge)
	}
	if err := e.DeleteDocument(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}
	stats := e.Stats()
	if stats.PendingPurge != 0 || stats.Terms != 1 {
		t.Errorf("stats after threshold = %+v", stats)
	}
	if err := e.DeleteDocument(ctx, ids[1]); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

func TestNewAnalyzer(t *testing.T) {
	cfg := testConfig()
	cfg.DisableStopWords = true
	if got := NewAnalyzer(cfg).Terms("the fox"); len(got) != 2 {
		t.Errorf("stop words not disabled: %v", got)
	}
	cfg = testConfig()
	cfg.StopWords = []string{"fox"}
	if got := NewAnalyzer(cfg).Terms("the fox"); len(got) != 1 || got[0] != "the" {
		t.Errorf("custom stop words = %v", got)
	}
}
