package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := iocdashcore.OpenOrCreateIndex(cfg.IndexPath)
	if err != nil {
		logger.Fatalw("Failed to open index", "path", cfg.IndexPath, "error", err)
	}
	defer index.Close()

	logger.Infow("Starting iocdash builder",
		"broker", cfg.Kafka.Broker, "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID, "index", cfg.IndexPath)

	reader := iocdashcore.NewKafkaReader(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	builder := iocdashcore.NewIndexBuilder(index, reader, logger)
	defer builder.Close()

	if err := builder.Run(ctx); err != nil {
		logger.Errorw("Index builder failed", "error", err)
	}
}
