package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
)

// Engine owns one inverted index and wraps its write path with validation,
// metrics, logging and compaction of deleted postings.
type Engine struct {
	index   *index.InvertedIndex
	cfg     config.IndexConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAnalyzer builds the analyzer described by cfg.
func NewAnalyzer(cfg config.IndexConfig) *analyzer.Analyzer {
	opts := []analyzer.Option{analyzer.WithStemming(cfg.Stemming)}
	switch {
	case cfg.DisableStopWords:
		opts = append(opts, analyzer.WithStopWords(nil))
	case len(cfg.StopWords) > 0:
		opts = append(opts, analyzer.WithStopWords(cfg.StopWords))
	}
	return analyzer.New(opts...)
}

// NewEngine creates an empty index configured by cfg. m may be nil.
func NewEngine(cfg config.IndexConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		index: index.New(
			index.WithAnalyzer(NewAnalyzer(cfg)),
			index.WithMaxDocuments(cfg.MaxDocuments),
		),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

func (e *Engine) Index() *index.InvertedIndex {
	return e.index
}

func (e *Engine) Analyzer() *analyzer.Analyzer {
	return e.index.Analyzer()
}

// IndexDocument validates and commits one document.
func (e *Engine) IndexDocument(ctx context.Context, doc index.Document) (index.DocID, error) {
	if err := validator.ValidateDocument(doc); err != nil {
		e.metrics.DocumentRejected("invalid")
		return 0, err
	}
	id, err := e.index.AddDocument(doc)
	if err != nil {
		e.reject(err)
		return 0, err
	}
	e.metrics.DocumentsIndexed(1)
	e.logger.Debug("document indexed",
		"doc_id", id,
		"fields", len(doc),
		"live_docs", e.index.DocCount(),
	)
	return id, nil
}

// IndexBatch validates the whole batch up front, then commits it. On a
// commit failure the ids of the committed prefix are returned with the
// error.
func (e *Engine) IndexBatch(ctx context.Context, docs []index.Document) ([]index.DocID, error) {
	if err := validator.ValidateBatch(docs); err != nil {
		e.metrics.DocumentRejected("invalid")
		return nil, err
	}
	start := time.Now()
	ids, err := e.index.AddDocuments(docs)
	e.metrics.DocumentsIndexed(len(ids))
	if err != nil {
		e.reject(err)
		e.logger.Warn("batch partially indexed",
			"committed", len(ids),
			"requested", len(docs),
			"error", err,
		)
		return ids, err
	}
	e.logger.Info("batch indexed",
		"docs", len(ids),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return ids, nil
}

// DeleteDocument tombstones id and compacts once enough deletions have
// accumulated.
func (e *Engine) DeleteDocument(ctx context.Context, id index.DocID) error {
	if err := e.index.DeleteDocument(id); err != nil {
		return err
	}
	e.metrics.DocumentDeleted()
	e.logger.Debug("document deleted", "doc_id", id)
	if e.cfg.CompactThreshold > 0 && e.index.PendingPurge() >= e.cfg.CompactThreshold {
		e.Compact()
	}
	return nil
}

func (e *Engine) Document(id index.DocID) (index.Document, error) {
	return e.index.StoredFields(id)
}

// Compact purges postings of deleted documents.
func (e *Engine) Compact() int {
	start := time.Now()
	removed := e.index.Compact()
	if removed > 0 {
		e.metrics.Compacted(removed)
		e.logger.Info("index compacted",
			"postings_removed", removed,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
	return removed
}

func (e *Engine) Stats() index.Stats {
	return e.index.Stats()
}

// StartCompactionLoop compacts on every tick of cfg.CompactInterval until
// ctx is cancelled. A zero interval disables the loop.
func (e *Engine) StartCompactionLoop(ctx context.Context) {
	if e.cfg.CompactInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.CompactInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Debug("compaction loop stopping")
				return
			case <-ticker.C:
				if e.index.PendingPurge() > 0 {
					e.Compact()
				}
			}
		}
	}()
}

func (e *Engine) reject(err error) {
	var capErr *index.CapacityError
	switch {
	case errors.As(err, &capErr):
		e.metrics.DocumentRejected("capacity")
		e.logger.Error("index capacity exceeded", "limit", capErr.Limit, "reason", capErr.Reason)
	case errors.Is(err, apperrors.ErrInvalidInput):
		e.metrics.DocumentRejected("invalid")
	default:
		e.metrics.DocumentRejected("error")
	}
}
