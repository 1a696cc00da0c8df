package iocdashcore

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeReader replays msgs and then reports io.EOF.
type fakeReader struct {
	msgs   []kafka.Message
	errs   []error
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestIndexBuilder_Run(t *testing.T) {
	msgs, err := BuildMessages(ingestedFixture())
	require.NoError(t, err)
	msgs = append(msgs, kafka.Message{
		Key:     []byte("broken"),
		Value:   []byte("{not json"),
		Headers: []kafka.Header{{Key: KindHeader, Value: []byte(KindIndicator)}},
	})

	index := newMemIndex(t)
	reader := &fakeReader{msgs: msgs, errs: []error{errors.New("transient")}}
	core, logs := observer.New(zapcore.InfoLevel)
	builder := NewIndexBuilder(index, reader, zap.New(core).Sugar())
	builder.retryDelay = time.Millisecond

	require.NoError(t, builder.Run(context.Background()))

	assert.Equal(t, BuilderStats{Indexed: 3, Summaries: 1, Failed: 1}, builder.Stats())
	assert.Equal(t, 1, logs.FilterMessage("Error reading message").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to handle message").Len())

	total, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)

	result, err := SearchIndicators(index, SearchQuery{Type: TypeDomain})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "reports/q1.adoc", result.Hits[0].Document)

	require.NoError(t, builder.Close())
	assert.True(t, reader.closed)
}

func TestIndexBuilder_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewIndexBuilder(newMemIndex(t), &fakeReader{}, nil)
	assert.NoError(t, builder.Run(ctx))
}

// brokenReader fails every read until ctx is done.
type brokenReader struct {
	calls int
}

func (r *brokenReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	r.calls++
	return kafka.Message{}, errors.New("broker unreachable")
}

func (r *brokenReader) Close() error { return nil }

func TestIndexBuilder_RunBacksOffOnReadErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	reader := &brokenReader{}
	builder := NewIndexBuilder(newMemIndex(t), reader, nil)
	builder.retryDelay = 20 * time.Millisecond
	builder.maxRetryDelay = 40 * time.Millisecond

	require.NoError(t, builder.Run(ctx))
	assert.GreaterOrEqual(t, reader.calls, 2)
	assert.LessOrEqual(t, reader.calls, 5)
}

func TestNextRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, nextRetryDelay(100*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, nextRetryDelay(800*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, nextRetryDelay(time.Second, time.Second))
}

func TestIndexBuilder_HandleMessage(t *testing.T) {
	builder := NewIndexBuilder(newMemIndex(t), &fakeReader{}, nil)

	tests := []struct {
		name    string
		message kafka.Message
		wantErr bool
	}{
		{
			name:    "missing value",
			message: kafka.Message{Value: []byte(`{"document":"a.adoc","ioc":{"type":"ip"}}`)},
			wantErr: true,
		},
		{
			name:    "unknown type",
			message: kafka.Message{Value: []byte(`{"document":"a.adoc","ioc":{"type":"cve","value":"CVE-2024-1"}}`)},
			wantErr: true,
		},
		{
			name: "unknown kind",
			message: kafka.Message{
				Value:   []byte(`{}`),
				Headers: []kafka.Header{{Key: KindHeader, Value: []byte("audit")}},
			},
			wantErr: true,
		},
		{
			name:    "indicator without header",
			message: kafka.Message{Value: []byte(`{"document":"a.adoc","ioc":{"type":"ip","value":"45.77.10.20","dateAdded":"2025-03-14T09:30:00Z"}}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := builder.HandleMessage(tt.message)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, 1, builder.Stats().Indexed)
}
