package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/logger"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		session   string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Publish a JSON array of documents to the ingest topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			if !cfg.Kafka.Enabled {
				return errors.New("ingest requires kafka.enabled")
			}
			if err := searcher.ValidateSessionID(session); err != nil {
				return err
			}
			docs, err := readDocuments(args[0])
			if err != nil {
				return err
			}
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, nil)
			defer producer.Close()
			n, err := ingestion.NewPublisher(producer, batchSize).AddDocuments(cmd.Context(), session, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d documents in %d events to session %q\n", len(docs), n, session)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", searcher.DefaultSession, "target session id")
	cmd.Flags().IntVar(&batchSize, "batch-size", ingestion.DefaultBatchSize, "documents per event")
	return cmd
}

func readDocuments(path string) ([]index.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var docs []index.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return docs, nil
}
