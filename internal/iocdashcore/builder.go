package iocdashcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader the index builder needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader creates a consumer-group reader for the indicator topic.
func NewKafkaReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
}

// BuilderStats counts what the index builder has consumed.
type BuilderStats struct {
	Indexed   int `json:"indexed"`
	Summaries int `json:"summaries"`
	Failed    int `json:"failed"`
}

// IndexBuilder consumes published indicator messages and indexes them.
type IndexBuilder struct {
	index  bleve.Index
	reader MessageReader
	logger *zap.SugaredLogger

	// read errors back off from retryDelay, doubling up to maxRetryDelay
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	mu    sync.Mutex
	stats BuilderStats
}

const (
	defaultRetryDelay    = 100 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second
)

// NewIndexBuilder creates a builder that reads from reader into index.
func NewIndexBuilder(index bleve.Index, reader MessageReader, logger *zap.SugaredLogger) *IndexBuilder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &IndexBuilder{
		index:         index,
		reader:        reader,
		logger:        logger,
		retryDelay:    defaultRetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
	}
}

// Run consumes messages until ctx is cancelled or the reader is closed.
// Undecodable messages are logged and skipped. Read errors are retried
// with a growing delay.
func (b *IndexBuilder) Run(ctx context.Context) error {
	b.logger.Info("Starting index builder")

	delay := b.retryDelay
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				b.logger.Infow("Index builder stopped", "stats", b.Stats())
				return nil
			}
			b.logger.Warnw("Error reading message", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				b.logger.Infow("Index builder stopped", "stats", b.Stats())
				return nil
			case <-time.After(delay):
			}
			delay = nextRetryDelay(delay, b.maxRetryDelay)
			continue
		}
		delay = b.retryDelay

		if err := b.HandleMessage(m); err != nil {
			b.logger.Warnw("Failed to handle message",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
			b.count(func(s *BuilderStats) { s.Failed++ })
			continue
		}
	}
}

func nextRetryDelay(delay, limit time.Duration) time.Duration {
	if delay *= 2; delay > limit {
		return limit
	}
	return delay
}

// HandleMessage indexes one indicator message. Document summaries are only
// logged.
func (b *IndexBuilder) HandleMessage(m kafka.Message) error {
	switch messageKind(m) {
	case KindDocument:
		var summary DocumentSummary
		if err := json.Unmarshal(m.Value, &summary); err != nil {
			return fmt.Errorf("failed to unmarshal document summary: %w", err)
		}
		b.logger.Infow("Document summary received", "document", summary.Document, "indicators", summary.TotalCount)
		b.count(func(s *BuilderStats) { s.Summaries++ })
		return nil

	case KindIndicator:
		var msg IndicatorMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal indicator message: %w", err)
		}
		if !msg.Indicator.Type.IsValid() || msg.Indicator.Value == "" {
			return fmt.Errorf("malformed indicator in message %s", string(m.Key))
		}
		id := IndicatorDocID(msg.Document, msg.Indicator)
		if err := b.index.Index(id, NewIndicatorDocument(msg.Document, msg.Indicator)); err != nil {
			return fmt.Errorf("failed to index %s: %w", id, err)
		}
		b.count(func(s *BuilderStats) { s.Indexed++ })
		return nil
	}
	return fmt.Errorf("unknown message kind %q", messageKind(m))
}

// Stats returns a snapshot of the consumption counters.
func (b *IndexBuilder) Stats() BuilderStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *IndexBuilder) count(update func(*BuilderStats)) {
	b.mu.Lock()
	update(&b.stats)
	b.mu.Unlock()
}

// Close closes the reader. The index is owned by the caller.
func (b *IndexBuilder) Close() error {
	return b.reader.Close()
}
