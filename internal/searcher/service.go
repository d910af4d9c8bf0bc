// Package searcher ties one session's index, parser, executor and result
// cache into the Service used by the HTTP and Kafka front ends, and keeps
// one Service per session in a Registry.
package searcher

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/tracing"
	"github.com/google/uuid"
)

// Tracker receives analytics events; *collector.Collector implements it.
type Tracker interface {
	Track(event any) bool
}

// Deps are the shared, optional collaborators of every Service.
type Deps struct {
	Cache   *cache.QueryCache
	Tracker Tracker
	Metrics *metrics.Metrics
}

type Service struct {
	session  string
	epoch    string
	engine   *indexer.Engine
	parser   *parser.Parser
	executor *executor.Executor
	cfg      config.SearchConfig
	deps     Deps
	logger   *slog.Logger
	lastUsed atomic.Int64
	cancel   context.CancelFunc
}

// NewService creates an empty index for session. The caller must Close it
// to stop its background compaction.
func NewService(session string, icfg config.IndexConfig, scfg config.SearchConfig, deps Deps) *Service {
	engine := indexer.NewEngine(icfg, deps.Metrics)
	ctx, cancel := context.WithCancel(context.Background())
	engine.StartCompactionLoop(ctx)
	s := &Service{
		session:  session,
		epoch:    uuid.NewString(),
		engine:   engine,
		parser:   parser.New(engine.Analyzer()),
		executor: executor.New(engine.Index()),
		cfg:      scfg,
		deps:     deps,
		logger:   slog.Default().With("component", "search-service", "session", session),
		cancel:   cancel,
	}
	s.touch()
	return s
}

func (s *Service) Session() string { return s.session }

func (s *Service) Close() {
	s.cancel()
	s.logger.Debug("search service closed", "live_docs", s.engine.Index().DocCount())
}

func (s *Service) touch() {
	s.touchAt(time.Now())
}

// touchAt records a use at t. LastUsed never moves backwards.
func (s *Service) touchAt(t time.Time) {
	n := t.UnixNano()
	for {
		old := s.lastUsed.Load()
		if n <= old || s.lastUsed.CompareAndSwap(old, n) {
			return
		}
	}
}

// LastUsed reports when the service last handled a call.
func (s *Service) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Service) AddDocument(ctx context.Context, doc index.Document) (index.DocID, error) {
	s.touch()
	start := time.Now()
	id, err := s.engine.IndexDocument(ctx, doc)
	if err != nil {
		s.trackWrite(analytics.EventRejected, nil, start, err)
		return 0, err
	}
	s.trackWrite(analytics.EventIndex, []index.DocID{id}, start, nil)
	return id, nil
}

// AddDocuments commits docs in order. On failure it returns the ids of the
// committed prefix together with the error.
func (s *Service) AddDocuments(ctx context.Context, docs []index.Document) ([]index.DocID, error) {
	s.touch()
	start := time.Now()
	ids, err := s.engine.IndexBatch(ctx, docs)
	if len(ids) > 0 {
		s.trackWrite(analytics.EventIndex, ids, start, nil)
	}
	if err != nil {
		s.trackWrite(analytics.EventRejected, nil, start, err)
	}
	return ids, err
}

func (s *Service) DeleteDocument(ctx context.Context, id index.DocID) error {
	s.touch()
	start := time.Now()
	if err := s.engine.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.trackWrite(analytics.EventDelete, []index.DocID{id}, start, nil)
	return nil
}

func (s *Service) Document(ctx context.Context, id index.DocID) (index.Document, error) {
	s.touch()
	return s.engine.Document(id)
}

// Search parses text as a free-text query against field.
func (s *Service) Search(ctx context.Context, field, text string, limit int) (*executor.SearchResult, error) {
	s.touch()
	ctx, span := s.trace(ctx)
	defer span.Finish(logger.FromContext(ctx))
	field = s.field(field)
	start := time.Now()
	_, ps := tracing.Start(ctx, "parse", "")
	q, err := s.parser.Parse(field, text)
	ps.End()
	if err != nil {
		s.observe(ctx, text, query.KindOther, nil, false, start, err)
		return nil, err
	}
	return s.execute(ctx, q, query.KindOf(q), limit)
}

// SearchTyped builds a query of the named kind. Unrecognized kinds are
// parsed as free text unless strict kinds are configured.
func (s *Service) SearchTyped(ctx context.Context, field, kind, text string, limit int) (*executor.SearchResult, error) {
	s.touch()
	ctx, span := s.trace(ctx)
	defer span.Finish(logger.FromContext(ctx))
	field = s.field(field)
	start := time.Now()
	k, ok := query.ParseKind(kind)
	if !ok {
		if s.cfg.StrictQueryKinds {
			err := apperrors.Newf(apperrors.ErrUnknownQueryKind, http.StatusBadRequest, "unknown query kind %q", kind)
			s.observe(ctx, text, query.KindOther, nil, false, start, err)
			return nil, err
		}
		logger.FromContext(ctx).Debug("unknown query kind, parsing as free text", "kind", kind)
	}
	_, ps := tracing.Start(ctx, "build", "")
	q, err := s.parser.Build(k, field, text)
	ps.End()
	if err != nil {
		s.observe(ctx, text, k, nil, false, start, err)
		return nil, err
	}
	return s.execute(ctx, q, k, limit)
}

// Execute runs an already built query.
func (s *Service) Execute(ctx context.Context, q query.Query, limit int) (*executor.SearchResult, error) {
	s.touch()
	ctx, span := s.trace(ctx)
	defer span.Finish(logger.FromContext(ctx))
	return s.execute(ctx, q, query.KindOf(q), limit)
}

func (s *Service) trace(ctx context.Context) (context.Context, *tracing.Span) {
	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	span.SetAttr("session", s.session)
	return ctx, span
}

func (s *Service) execute(ctx context.Context, q query.Query, kind query.Kind, limit int) (*executor.SearchResult, error) {
	start := time.Now()
	limit = s.limit(limit)
	ctx, span := tracing.Start(ctx, "execute", "")
	defer span.End()
	var (
		result *executor.SearchResult
		hit    bool
		err    error
	)
	if s.deps.Cache != nil {
		key := cache.Key{
			Session:    s.session,
			Epoch:      s.epoch,
			Generation: s.engine.Index().Generation(),
			Query:      q.String(),
			Limit:      limit,
		}
		result, hit, err = s.deps.Cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return s.executor.Execute(ctx, q, limit)
		})
	} else {
		result, err = s.executor.Execute(ctx, q, limit)
	}
	span.SetAttr("cache_hit", hit)
	s.observe(ctx, q.String(), kind, result, hit, start, err)
	if err != nil {
		return nil, err
	}
	span.SetAttr("total_hits", result.TotalHits)
	return result, nil
}

func (s *Service) Stats() index.Stats {
	return s.engine.Stats()
}

func (s *Service) Compact() int {
	s.touch()
	return s.engine.Compact()
}

func (s *Service) field(field string) string {
	if field == "" {
		return s.cfg.DefaultField
	}
	return field
}

func (s *Service) limit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxResults > 0 && limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	return limit
}

func (s *Service) observe(ctx context.Context, q string, kind query.Kind, result *executor.SearchResult, hit bool, start time.Time, err error) {
	elapsed := time.Since(start)
	total := 0
	if result != nil {
		total = result.TotalHits
	}
	s.deps.Metrics.ObserveSearch(kind.String(), hit, total, elapsed, err)
	log := logger.FromContext(ctx)
	if err != nil {
		log.Info("search failed", "session", s.session, "query", q, "kind", kind.String(), "error", err)
	} else {
		log.Info("search completed",
			"session", s.session,
			"query", q,
			"kind", kind.String(),
			"total_hits", total,
			"returned", len(result.Hits),
			"cache_hit", hit,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	if s.deps.Tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Session:   s.session,
		Query:     q,
		Kind:      kind.String(),
		TotalHits: total,
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		CacheHit:  hit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if result != nil {
		event.Returned = len(result.Hits)
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.deps.Tracker.Track(event)
}

func (s *Service) trackWrite(typ analytics.EventType, ids []index.DocID, start time.Time, err error) {
	if s.deps.Tracker == nil {
		return
	}
	event := analytics.IndexEvent{
		Type:      typ,
		Session:   s.session,
		Count:     len(ids),
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		Timestamp: time.Now().UTC(),
	}
	for _, id := range ids {
		event.DocumentIDs = append(event.DocumentIDs, uint32(id))
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.deps.Tracker.Track(event)
}
