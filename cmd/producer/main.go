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

	path := cfg.DataDir
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	logger.Infow("Starting iocdash producer", "broker", cfg.Kafka.Broker, "topic", cfg.Kafka.Topic, "path", path)

	publisher := iocdashcore.NewPublisher(iocdashcore.NewKafkaWriter(cfg.Kafka.Broker, cfg.Kafka.Topic), logger)
	defer publisher.Close()

	docs, err := bootstrap.NewIngester(cfg, logger).IngestPath(ctx, path)
	if err != nil {
		logger.Fatalw("Failed to ingest documents", "path", path, "error", err)
	}
	logger.Infow("Ingested documents, publishing", "count", len(docs))

	published := 0
	for _, doc := range docs {
		if _, err := publisher.PublishDocument(ctx, doc); err != nil {
			logger.Errorw("Error publishing document", "document", doc.Name, "error", err)
			continue
		}
		published++
	}
	logger.Infow("Finished publishing documents", "published", published, "total", len(docs))
}
