package searcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

func newTestRegistry(t *testing.T, mutate func(*config.SearchConfig)) *Registry {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg.Search)
	}
	r := NewRegistry(cfg.Index, cfg.Search, Deps{})
	t.Cleanup(r.Close)
	return r
}

func TestRegistryCreatesLazily(t *testing.T) {
	r := newTestRegistry(t, nil)
	if _, err := r.Lookup("a"); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Fatalf("Lookup before Get: %v", err)
	}
	a1, err := r.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := r.Get("a")
	if a1 != a2 {
		t.Error("Get returned different services for one session")
	}
	def, _ := r.Get("")
	if def.Session() != DefaultSession {
		t.Errorf("empty session mapped to %q", def.Session())
	}
	if got := r.Sessions(); len(got) != 2 || got[0] != "a" || got[1] != "default" {
		t.Errorf("Sessions = %v", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	r := newTestRegistry(t, nil)
	a, _ := r.Get("a")
	b, _ := r.Get("b")
	if _, err := a.AddDocument(t.Context(), index.Document{"text": "fox"}); err != nil {
		t.Fatal(err)
	}
	res, err := b.Search(t.Context(), "text", "fox", 10)
	if err != nil || res.TotalHits != 0 {
		t.Errorf("session b sees session a's documents: %+v, %v", res, err)
	}
}

func TestRegistryLimits(t *testing.T) {
	r := newTestRegistry(t, func(c *config.SearchConfig) { c.MaxSessions = 1 })
	if _, err := r.Get("one"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("two"); !errors.Is(err, apperrors.ErrCapacityExceeded) {
		t.Errorf("second session: %v", err)
	}
	if !r.Drop("one") || r.Drop("one") {
		t.Error("Drop should report existence once")
	}
	if _, err := r.Get("two"); err != nil {
		t.Errorf("after drop: %v", err)
	}
}

func TestValidateSessionID(t *testing.T) {
	for _, id := range []string{"a", "tenant-1", "A.b_c"} {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v", id, err)
		}
	}
	for _, id := range []string{"", "has space", "glob*", "a:b", string(make([]byte, 65))} {
		if err := ValidateSessionID(id); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("ValidateSessionID(%q) = %v, want ErrInvalidInput", id, err)
		}
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	r := newTestRegistry(t, func(c *config.SearchConfig) { c.SessionTTL = time.Minute })
	r.Get("idle")
	if n := r.Sweep(); n != 0 {
		t.Fatalf("fresh session evicted: %d", n)
	}
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if len(r.Sessions()) != 0 {
		t.Errorf("Sessions = %v", r.Sessions())
	}
}

func TestGetKeepsSessionAliveAgainstSweep(t *testing.T) {
	ttl := time.Minute
	r := newTestRegistry(t, func(c *config.SearchConfig) { c.SessionTTL = ttl })
	first, _ := r.Get("busy")
	r.now = func() time.Time { return time.Now().Add(ttl + time.Second) }

	again, err := r.Get("busy")
	if err != nil {
		t.Fatal(err)
	}
	if n := r.Sweep(); n != 0 {
		t.Fatalf("Sweep evicted %d sessions right after Get", n)
	}
	if again != first {
		t.Error("Get recreated a live session")
	}
	if _, err := r.Lookup("busy"); err != nil {
		t.Errorf("session gone after Get: %v", err)
	}
}

func (b *mapBackend) keysWithPrefix(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func TestRecreatedSessionNeverSeesOldCachedResults(t *testing.T) {
	cfg := config.Default()
	cfg.Search.SessionTTL = time.Minute
	backend := &mapBackend{data: make(map[string][]byte)}
	r := NewRegistry(cfg.Index, cfg.Search, Deps{Cache: cache.New(backend, cfg.Redis, nil)})
	t.Cleanup(r.Close)
	ctx := context.Background()

	old, _ := r.Get("a")
	if _, err := old.AddDocument(ctx, index.Document{"text": "fox secret"}); err != nil {
		t.Fatal(err)
	}
	if res, _ := old.Search(ctx, "text", "fox", 10); res.TotalHits != 1 {
		t.Fatalf("first search total = %d", res.TotalHits)
	}
	if backend.keysWithPrefix("search:a:") == 0 {
		t.Fatal("result was not cached")
	}

	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if n := backend.keysWithPrefix("search:a:"); n != 0 {
		t.Errorf("%d cache entries left for the evicted session", n)
	}

	fresh, _ := r.Get("a")
	if _, err := fresh.AddDocument(ctx, index.Document{"text": "banana"}); err != nil {
		t.Fatal(err)
	}
	res, err := fresh.Search(ctx, "text", "fox", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 0 || len(res.Hits) != 0 {
		t.Errorf("recreated session returned hits from its old index: %+v", res.Hits)
	}
}

func TestRecreatedSessionIgnoresEntriesLeftInCache(t *testing.T) {
	cfg := config.Default()
	backend := &mapBackend{data: make(map[string][]byte)}
	qc := cache.New(backend, cfg.Redis, nil)
	ctx := context.Background()

	// Two instances of one session, as with two processes sharing Redis.
	a := NewService("shared", cfg.Index, cfg.Search, Deps{Cache: qc})
	defer a.Close()
	b := NewService("shared", cfg.Index, cfg.Search, Deps{Cache: qc})
	defer b.Close()

	a.AddDocument(ctx, index.Document{"text": "fox"})
	b.AddDocument(ctx, index.Document{"text": "dog"})
	if res, _ := a.Search(ctx, "text", "fox", 10); res.TotalHits != 1 {
		t.Fatalf("a total = %d", res.TotalHits)
	}
	if res, _ := b.Search(ctx, "text", "fox", 10); res.TotalHits != 0 {
		t.Errorf("b served a's cached result: %+v", res.Hits)
	}
}

func TestDropInvalidatesCache(t *testing.T) {
	cfg := config.Default()
	backend := &mapBackend{data: make(map[string][]byte)}
	r := NewRegistry(cfg.Index, cfg.Search, Deps{Cache: cache.New(backend, cfg.Redis, nil)})
	t.Cleanup(r.Close)
	ctx := context.Background()

	svc, _ := r.Get("gone")
	svc.AddDocument(ctx, index.Document{"text": "fox"})
	svc.Search(ctx, "text", "fox", 10)
	keep, _ := r.Get("kept")
	keep.AddDocument(ctx, index.Document{"text": "fox"})
	keep.Search(ctx, "text", "fox", 10)

	r.Drop("gone")
	if n := backend.keysWithPrefix("search:gone:"); n != 0 {
		t.Errorf("%d entries left after Drop", n)
	}
	if backend.keysWithPrefix("search:kept:") == 0 {
		t.Error("Drop removed another session's entries")
	}
}
