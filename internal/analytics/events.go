// Package analytics aggregates search and indexing events into the stats
// served by GET /api/v1/analytics. Events arrive either in-process from the
// collector or from the analytics-events Kafka topic.
package analytics

import "time"

type EventType string

const (
	EventSearch   EventType = "search"
	EventIndex    EventType = "index_document"
	EventDelete   EventType = "delete_document"
	EventRejected EventType = "index_rejected"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Session   string    `json:"session"`
	Query     string    `json:"query"`
	Kind      string    `json:"kind"`
	Terms     []string  `json:"terms,omitempty"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexEvent covers additions (one per committed batch), deletions and
// rejected writes.
type IndexEvent struct {
	Type        EventType `json:"type"`
	Session     string    `json:"session"`
	DocumentIDs []uint32  `json:"document_ids,omitempty"`
	Count       int       `json:"count"`
	Error       string    `json:"error,omitempty"`
	LatencyMs   float64   `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventKey partitions Kafka messages by session.
func (e SearchEvent) EventKey() string { return e.Session }

func (e IndexEvent) EventKey() string { return e.Session }
