package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
)

// DefaultBatchSize is the number of documents carried by one IngestEvent.
const DefaultBatchSize = 100

// EventWriter is satisfied by *kafka.Producer.
type EventWriter interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher turns documents into IngestEvents on the ingest topic. Events
// are keyed by session so one session's events stay ordered.
type Publisher struct {
	writer    EventWriter
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewPublisher(w EventWriter, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Publisher{
		writer:    w,
		batchSize: batchSize,
		now:       time.Now,
		logger:    slog.Default().With("component", "ingest-publisher"),
	}
}

// AddDocuments validates docs and publishes them in batches. Nothing is
// published if any document is invalid.
func (p *Publisher) AddDocuments(ctx context.Context, session string, docs []index.Document) (int, error) {
	if err := validator.ValidateBatch(docs); err != nil {
		return 0, err
	}
	var events []kafka.Event
	for start := 0; start < len(docs); start += p.batchSize {
		end := min(start+p.batchSize, len(docs))
		events = append(events, kafka.Event{
			Key: session,
			Value: IngestEvent{
				Action:     ActionAdd,
				Session:    session,
				Documents:  docs[start:end],
				IngestedAt: p.now().UTC(),
			},
		})
	}
	if err := p.writer.PublishBatch(ctx, events); err != nil {
		return 0, fmt.Errorf("publishing %d documents: %w", len(docs), err)
	}
	p.logger.Info("documents published", "session", session, "docs", len(docs), "events", len(events))
	return len(events), nil
}

func (p *Publisher) DeleteDocuments(ctx context.Context, session string, ids []index.DocID) error {
	events := make([]kafka.Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, kafka.Event{
			Key: session,
			Value: IngestEvent{
				Action:     ActionDelete,
				Session:    session,
				DocumentID: id,
				IngestedAt: p.now().UTC(),
			},
		})
	}
	if err := p.writer.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("publishing %d deletions: %w", len(ids), err)
	}
	return nil
}
