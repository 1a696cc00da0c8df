package iocdashcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Message kinds carried in the "kind" header.
const (
	KindHeader       = "kind"
	KindIndicator    = "indicator"
	KindDocument     = "document"
	publishBatchSize = 200
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IndicatorMessage is the payload of one indicator message.
type IndicatorMessage struct {
	Document  string    `json:"document"`
	Checksum  string    `json:"checksum"`
	Indicator Indicator `json:"ioc"`
}

// DocumentSummary is the payload of the per-document summary message.
type DocumentSummary struct {
	Document    string                `json:"document"`
	Checksum    string                `json:"checksum"`
	LastUpdated time.Time             `json:"lastUpdated"`
	TotalCount  int                   `json:"totalCount"`
	Categories  map[IndicatorType]int `json:"categories"`
	FileStats   FileStats             `json:"fileStats"`
}

// NewKafkaWriter creates a writer for the indicator topic.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// Publisher sends parse results to Kafka, one message per indicator plus a
// summary per document.
type Publisher struct {
	writer MessageWriter
	logger *zap.SugaredLogger
}

// NewPublisher wraps writer.
func NewPublisher(writer MessageWriter, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{writer: writer, logger: logger}
}

// MessageKey keys indicator messages so that every occurrence of the same
// indicator lands on the same partition.
func MessageKey(ioc Indicator) string {
	return IndicatorKey(ioc)
}

// BuildMessages encodes doc as indicator messages followed by its summary.
func BuildMessages(doc IngestedDocument) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(doc.Document.Indicators)+1)
	for _, ioc := range doc.Document.Indicators {
		data, err := json.Marshal(IndicatorMessage{Document: doc.Name, Checksum: doc.Checksum, Indicator: ioc})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal indicator %s: %w", ioc.Value, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(MessageKey(ioc)),
			Value:   data,
			Headers: []kafka.Header{{Key: KindHeader, Value: []byte(KindIndicator)}},
		})
	}

	summary, err := json.Marshal(DocumentSummary{
		Document:    doc.Name,
		Checksum:    doc.Checksum,
		LastUpdated: doc.Document.LastUpdated,
		TotalCount:  doc.Document.TotalCount,
		Categories:  doc.Document.Categories,
		FileStats:   doc.Document.FileStats,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary for %s: %w", doc.Name, err)
	}
	msgs = append(msgs, kafka.Message{
		Key:     []byte(KindDocument + ":" + doc.Name),
		Value:   summary,
		Headers: []kafka.Header{{Key: KindHeader, Value: []byte(KindDocument)}},
	})
	return msgs, nil
}

// PublishDocument writes all messages for doc and returns how many were sent.
func (p *Publisher) PublishDocument(ctx context.Context, doc IngestedDocument) (int, error) {
	msgs, err := BuildMessages(doc)
	if err != nil {
		return 0, err
	}

	sent := 0
	for start := 0; start < len(msgs); start += publishBatchSize {
		end := start + publishBatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		if err := p.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return sent, fmt.Errorf("failed to publish %s: %w", doc.Name, err)
		}
		sent += end - start
	}

	p.logger.Infow("Published document", "document", doc.Name, "indicators", doc.Document.TotalCount, "messages", sent)
	return sent, nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// messageKind reads the kind header, defaulting to indicator.
func messageKind(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == KindHeader {
			return string(h.Value)
		}
	}
	return KindIndicator
}
