package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iocdash/internal/bootstrap"
	"iocdash/internal/iocdashcore"
	"iocdash/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Config file path")
	flag.Parse()

	cfg, logger, err := bootstrap.Setup(*configPath)
	if err != nil {
		logging.Must("info", false).Fatalw("Failed to load configuration", "error", err)
	}
	defer logger.Sync()

	store, err := iocdashcore.NewSnapshotStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalw("Failed to open database", "path", cfg.DBPath, "error", err)
	}
	defer store.Close()

	index, err := iocdashcore.OpenOrCreateIndex(cfg.IndexPath)
	if err != nil {
		logger.Fatalw("Failed to open index", "path", cfg.IndexPath, "error", err)
	}
	defer index.Close()

	api := iocdashcore.NewAPIServer(bootstrap.NewParser(cfg, logger), store, index, logger)
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Handler(cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("Shutdown error", "error", err)
		}
	}()

	logger.Infow("Starting iocdash search API", "addr", cfg.HTTP.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorw("Server failed", "error", err)
	}
}
