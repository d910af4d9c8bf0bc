package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	maxTrackedQueries = 10000
	topQueryCount     = 10
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	FailedSearches    int64            `json:"failed_searches"`
	TotalDocsIndexed  int64            `json:"total_docs_indexed"`
	TotalDocsDeleted  int64            `json:"total_docs_deleted"`
	RejectedWrites    int64            `json:"rejected_writes"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	QueriesByKind     map[string]int64 `json:"queries_by_kind"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Since             time.Time        `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals. Latencies are kept in a fixed-size ring
// and distinct queries are capped, so memory stays bounded.
type Aggregator struct {
	mu                sync.Mutex
	stats             AggregatedStats
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	a := &Aggregator{
		latencies:         make([]float64, 0, maxLatencySamples),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
	a.stats.QueriesByKind = make(map[string]int64)
	a.stats.Since = a.now().UTC()
	return a
}

// Record folds one event into the totals. Unknown values are ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	case IndexEvent:
		a.recordIndex(e)
	case *IndexEvent:
		a.recordIndex(*e)
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches++
	if e.Error != "" {
		a.stats.FailedSearches++
		return
	}
	if e.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	a.stats.QueriesByKind[e.Kind]++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	bump(a.queryCounts, e.Query)
	if e.TotalHits == 0 {
		a.stats.ZeroResultCount++
		bump(a.zeroResultQueries, e.Query)
	}
}

func (a *Aggregator) recordIndex(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e.Type {
	case EventIndex:
		a.stats.TotalDocsIndexed += int64(e.Count)
	case EventDelete:
		a.stats.TotalDocsDeleted += int64(e.Count)
	case EventRejected:
		a.stats.RejectedWrites++
	}
}

func bump(counts map[string]int64, query string) {
	if _, ok := counts[query]; ok || len(counts) < maxTrackedQueries {
		counts[query]++
	}
}

// Restore seeds the totals from a persisted snapshot. Latency samples and
// per-query counts are not restored.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches += s.TotalSearches
	a.stats.FailedSearches += s.FailedSearches
	a.stats.TotalDocsIndexed += s.TotalDocsIndexed
	a.stats.TotalDocsDeleted += s.TotalDocsDeleted
	a.stats.RejectedWrites += s.RejectedWrites
	a.stats.CacheHits += s.CacheHits
	a.stats.CacheMisses += s.CacheMisses
	a.stats.ZeroResultCount += s.ZeroResultCount
	for kind, n := range s.QueriesByKind {
		a.stats.QueriesByKind[kind] += n
	}
	if !s.Since.IsZero() && s.Since.Before(a.stats.Since) {
		a.stats.Since = s.Since
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats
	stats.QueriesByKind = make(map[string]int64, len(a.stats.QueriesByKind))
	for k, v := range a.stats.QueriesByKind {
		stats.QueriesByKind[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueryCount)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueryCount)
	if minutes := a.now().Sub(stats.Since).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / minutes
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// HandleEvent feeds analytics-events messages into agg. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var envelope struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			agg.logger.Warn("skipping undecodable analytics event", "error", err)
			return nil
		}
		switch envelope.Type {
		case EventSearch:
			e, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Warn("skipping search event", "error", err)
				return nil
			}
			agg.Record(e)
		case EventIndex, EventDelete, EventRejected:
			e, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Warn("skipping index event", "error", err)
				return nil
			}
			agg.Record(e)
		default:
			agg.logger.Warn("skipping analytics event of unknown type", "type", envelope.Type)
		}
		return nil
	}
}
