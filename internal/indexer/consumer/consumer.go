// Package consumer applies document-ingest events from Kafka to the session
// indexes held by a searcher.Registry.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
)

// IndexConsumer drives the ingest topic into the registry.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Run(ctx)
}

// HandleMessage returns a MessageHandler that applies each IngestEvent to
// the session it names. Events that can never succeed (undecodable,
// invalid, over capacity) are logged, counted and acknowledged so they do
// not stall the partition. Only cancellation is returned as an error.
func HandleMessage(registry *searcher.Registry, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			m.IngestEvent("unknown", "invalid")
			return nil
		}
		err = apply(ctx, registry, event)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warn("ingest event rejected",
				"action", event.Action,
				"session", event.Session,
				"error", err,
			)
			m.IngestEvent(string(event.Action), "rejected")
			return nil
		}
		logger.Debug("ingest event applied", "action", event.Action, "session", event.Session)
		m.IngestEvent(string(event.Action), "applied")
		return nil
	}
}

func apply(ctx context.Context, registry *searcher.Registry, event ingestion.IngestEvent) error {
	svc, err := registry.Get(event.Session)
	if err != nil {
		return err
	}
	switch event.Action {
	case ingestion.ActionAdd:
		switch {
		case len(event.Documents) > 0:
			_, err = svc.AddDocuments(ctx, event.Documents)
		case event.Document != nil:
			_, err = svc.AddDocument(ctx, event.Document)
		default:
			err = errors.New("add event carries no document")
		}
		return err
	case ingestion.ActionDelete:
		return svc.DeleteDocument(ctx, event.DocumentID)
	default:
		return fmt.Errorf("unknown ingest action %q", event.Action)
	}
}
