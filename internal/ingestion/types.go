// Package ingestion defines the request/response types and Kafka event
// schemas used to get documents into a session index.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
)

// Action selects what an IngestEvent does to the target index.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// IngestResponse is returned after a single document is committed.
type IngestResponse struct {
	DocumentID index.DocID `json:"id"`
	Status     string      `json:"status"`
}

// BatchResponse is returned after a batch is committed. On partial failure
// DocumentIDs lists the committed prefix and Error describes the rejection.
type BatchResponse struct {
	DocumentIDs []index.DocID `json:"ids"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// IngestEvent is the Kafka message payload consumed by the index consumer.
type IngestEvent struct {
	Action     Action           `json:"action"`
	Session    string           `json:"session"`
	Document   index.Document   `json:"document,omitempty"`
	Documents  []index.Document `json:"documents,omitempty"`
	DocumentID index.DocID      `json:"document_id,omitempty"`
	IngestedAt time.Time        `json:"ingested_at"`
}
