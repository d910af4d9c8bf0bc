package searcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

type eventLog struct {
	mu     sync.Mutex
	events []any
}

func (l *eventLog) Track(event any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return true
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *mapBackend) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T, strict bool, deps Deps) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Search.StrictQueryKinds = strict
	svc := NewService("test", cfg.Index, cfg.Search, deps)
	t.Cleanup(svc.Close)
	return svc
}

func addAll(t *testing.T, svc *Service, docs ...index.Document) {
	t.Helper()
	if _, err := svc.AddDocuments(context.Background(), docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
}

func TestServiceSearch(t *testing.T) {
	svc := newTestService(t, false, Deps{})
	addAll(t, svc,
		index.Document{"title": "t1", "text": "the quick brown fox"},
		index.Document{"title": "t2", "text": "quick fox"},
	)
	ctx := context.Background()

	res, err := svc.Search(ctx, "", `"quick fox"`, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Fields["title"] != "t2" {
		t.Errorf("phrase hits = %+v", res.Hits)
	}

	res, err = svc.Search(ctx, "title", "t1", 0)
	if err != nil || res.TotalHits != 1 {
		t.Errorf("title search = %+v, %v", res, err)
	}

	if _, err := svc.Search(ctx, "text", `"unterminated`, 0); !errors.Is(err, apperrors.ErrQuerySyntax) {
		t.Errorf("err = %v, want ErrQuerySyntax", err)
	}
}

func TestSearchTypedKinds(t *testing.T) {
	svc := newTestService(t, false, Deps{})
	addAll(t, svc,
		index.Document{"text": "testing tester tested"},
		index.Document{"text": "banana"},
	)
	ctx := context.Background()
	tests := []struct {
		kind string
		text string
		want int
	}{
		{"TERM", "banana", 1},
		{"prefix", "test", 1},
		{"WILDCARD", "b*a", 1},
		{"FUZZY", "bananas", 1},
		{"PHRASE", "testing tester", 1},
		{"BOOLEAN", "+banana -testing", 1},
		{"BOOLEAN", "testing banana", 2},
		{"OTHER", "banana", 1},
	}
	for _, tt := range tests {
		res, err := svc.SearchTyped(ctx, "text", tt.kind, tt.text, 10)
		if err != nil {
			t.Fatalf("SearchTyped(%s, %q): %v", tt.kind, tt.text, err)
		}
		if res.TotalHits != tt.want {
			t.Errorf("SearchTyped(%s, %q) TotalHits = %d, want %d", tt.kind, tt.text, res.TotalHits, tt.want)
		}
	}
}

func TestUnknownKindFallsBackToFreeText(t *testing.T) {
	svc := newTestService(t, false, Deps{})
	addAll(t, svc, index.Document{"text": "apple pie"}, index.Document{"text": "apple tart"})
	res, err := svc.SearchTyped(context.Background(), "text", "REGEX", "+apple -tart", 10)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.TotalHits != 1 || res.Query != "+text:apple -text:tart" {
		t.Errorf("fallback result = %+v", res)
	}
}

func TestUnknownKindRejectedWhenStrict(t *testing.T) {
	svc := newTestService(t, true, Deps{})
	_, err := svc.SearchTyped(context.Background(), "text", "REGEX", "apple", 10)
	if !errors.Is(err, apperrors.ErrUnknownQueryKind) {
		t.Fatalf("err = %v, want ErrUnknownQueryKind", err)
	}
	if apperrors.HTTPStatusCode(err) != 400 {
		t.Errorf("status = %d, want 400", apperrors.HTTPStatusCode(err))
	}
	if _, err := svc.SearchTyped(context.Background(), "text", "term", "apple", 10); err != nil {
		t.Errorf("known kind rejected in strict mode: %v", err)
	}
}

func TestLimitClamping(t *testing.T) {
	svc := newTestService(t, false, Deps{})
	docs := make([]index.Document, 150)
	for i := range docs {
		docs[i] = index.Document{"text": "common"}
	}
	addAll(t, svc, docs...)
	ctx := context.Background()
	tests := []struct {
		limit int
		want  int
	}{
		{0, 10},
		{-3, 10},
		{25, 25},
		{1000, 100},
	}
	for _, tt := range tests {
		res, err := svc.Search(ctx, "text", "common", tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Hits) != tt.want || res.TotalHits != 150 {
			t.Errorf("limit %d: hits = %d total = %d", tt.limit, len(res.Hits), res.TotalHits)
		}
	}
}

func TestDeleteHidesDocument(t *testing.T) {
	svc := newTestService(t, false, Deps{})
	ctx := context.Background()
	id, err := svc.AddDocument(ctx, index.Document{"text": "fox"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDocument(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Document(ctx, id); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("Document after delete: %v", err)
	}
	if err := svc.DeleteDocument(ctx, id); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("second delete: %v", err)
	}
	res, _ := svc.Search(ctx, "text", "fox", 10)
	if res.TotalHits != 0 {
		t.Errorf("deleted document returned: %+v", res.Hits)
	}
}

func TestCachedResultsFollowWrites(t *testing.T) {
	backend := &mapBackend{data: make(map[string][]byte)}
	qc := cache.New(backend, config.Default().Redis, nil)
	svc := newTestService(t, false, Deps{Cache: qc})
	ctx := context.Background()

	addAll(t, svc, index.Document{"text": "fox"})
	if res, _ := svc.Search(ctx, "text", "fox", 10); res.TotalHits != 1 {
		t.Fatalf("first search total = %d", res.TotalHits)
	}
	if res, _ := svc.Search(ctx, "text", "fox", 10); res.TotalHits != 1 {
		t.Fatalf("cached search total = %d", res.TotalHits)
	}
	if st := qc.Stats(); st.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", st.Hits)
	}

	addAll(t, svc, index.Document{"text": "fox"})
	if res, _ := svc.Search(ctx, "text", "fox", 10); res.TotalHits != 2 {
		t.Errorf("search after write total = %d, want 2 (stale cache)", res.TotalHits)
	}
}

func TestServiceTracksEvents(t *testing.T) {
	log := &eventLog{}
	svc := newTestService(t, false, Deps{Tracker: log})
	ctx := context.Background()
	id, _ := svc.AddDocument(ctx, index.Document{"text": "fox"})
	svc.AddDocument(ctx, index.Document{})
	svc.Search(ctx, "text", "fox", 10)
	svc.DeleteDocument(ctx, id)

	if len(log.events) != 4 {
		t.Fatalf("events = %d, want 4: %+v", len(log.events), log.events)
	}
	if e, ok := log.events[0].(analytics.IndexEvent); !ok || e.Type != analytics.EventIndex || e.Count != 1 {
		t.Errorf("event 0 = %+v", log.events[0])
	}
	if e, ok := log.events[1].(analytics.IndexEvent); !ok || e.Type != analytics.EventRejected {
		t.Errorf("event 1 = %+v", log.events[1])
	}
	if e, ok := log.events[2].(analytics.SearchEvent); !ok || e.Kind != "TERM" || e.TotalHits != 1 || e.Session != "test" {
		t.Errorf("event 2 = %+v", log.events[2])
	}
	if e, ok := log.events[3].(analytics.IndexEvent); !ok || e.Type != analytics.EventDelete {
		t.Errorf("event 3 = %+v", log.events[3])
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	cfg := config.Default()
	svc := NewService("bench", cfg.Index, cfg.Search, Deps{})
	defer svc.Close()
	docs := make([]index.Document, 10000)
	for i := range docs {
		docs[i] = index.Document{"title": "distributed search", "text": "search engine with distributed indexing and query processing"}
	}
	if _, err := svc.AddDocuments(context.Background(), docs); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.Search(context.Background(), "text", "+search distributed", 10); err != nil {
				b.Fatal(err)
			}
		}
	})
}
