// Package bootstrap wires configuration, logging and the parser for the
// iocdash binaries.
package bootstrap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"iocdash/internal/config"
	"iocdash/internal/iocdashcore"
	"iocdash/internal/logging"
)

// Setup loads configuration from configPath (or the default locations) and
// builds the logger it describes.
func Setup(configPath string) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// NewParser builds a parser from cfg.
func NewParser(cfg *config.Config, logger *zap.SugaredLogger) *iocdashcore.Parser {
	return iocdashcore.NewParser(
		iocdashcore.WithSource(cfg.Source),
		iocdashcore.WithDuplicatePolicy(iocdashcore.DuplicatePolicy(cfg.DuplicatePolicy)),
		iocdashcore.WithLogger(logger),
	)
}

// NewIngester builds a directory ingester from cfg.
func NewIngester(cfg *config.Config, logger *zap.SugaredLogger) *iocdashcore.DataIngester {
	return iocdashcore.NewDataIngester(NewParser(cfg, logger), cfg.Ingest.Extensions, cfg.Ingest.Concurrency, logger)
}

// OpenStoreWithRetry opens the snapshot store, retrying while another
// process holds the database lock.
func OpenStoreWithRetry(path string, attempts int, delay time.Duration, logger *zap.SugaredLogger) (*iocdashcore.SnapshotStore, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		store, err := iocdashcore.NewSnapshotStore(path, logger)
		if err == nil {
			return store, nil
		}
		lastErr = err
		logger.Warnw("Failed to open database", "path", path, "attempt", i+1, "of", attempts, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to open database after %d attempts: %w", attempts, lastErr)
}
