package main

import (
	"context"
	"flag"
	"time"

	"iocdash/internal/bootstrap"
	"iocdash/internal/iocdashcore"
	"iocdash/internal/logging"
)

// Retry opening the database while a producer run still holds the lock.
const (
	maxRetries = 10
	retryDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Config file path")
	parseFirst := flag.Bool("parse", false, "Parse the data directory into the database before indexing")
	flag.Parse()

	cfg, logger, err := bootstrap.Setup(*configPath)
	if err != nil {
		logging.Must("info", false).Fatalw("Failed to load configuration", "error", err)
	}
	defer logger.Sync()

	store, err := bootstrap.OpenStoreWithRetry(cfg.DBPath, maxRetries, retryDelay, logger)
	if err != nil {
		logger.Fatalw("Failed to open database", "path", cfg.DBPath, "error", err)
	}
	defer store.Close()

	if *parseFirst {
		docs, err := bootstrap.NewIngester(cfg, logger).IngestDirectory(context.Background(), cfg.DataDir)
		if err != nil {
			logger.Fatalw("Failed to ingest data directory", "dir", cfg.DataDir, "error", err)
		}
		for _, doc := range docs {
			snap := &iocdashcore.DocumentSnapshot{Name: doc.Name, Checksum: doc.Checksum, Document: doc.Document}
			if err := store.SaveDocument(snap); err != nil {
				logger.Errorw("Error saving snapshot", "document", doc.Name, "error", err)
			}
		}
	}

	index, err := iocdashcore.OpenOrCreateIndex(cfg.IndexPath)
	if err != nil {
		logger.Fatalw("Failed to open index", "path", cfg.IndexPath, "error", err)
	}
	defer index.Close()

	total, err := iocdashcore.IndexSnapshots(store, index)
	if err != nil {
		logger.Errorw("Indexing stopped early", "indexed", total, "error", err)
		return
	}
	logger.Infow("Indexing complete", "indexed", total, "index", cfg.IndexPath)
}
