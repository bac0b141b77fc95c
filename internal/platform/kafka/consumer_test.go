package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeReader serves queued messages and records commits. Once the queue is
// empty FetchMessage blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(reader *fakeReader, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      "rental.events",
		logger:     logger,
		newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func messages(offsets ...int64) []kafkago.Message {
	out := make([]kafkago.Message, len(offsets))
	for i, o := range offsets {
		out[i] = kafkago.Message{Topic: "rental.events", Offset: o}
	}
	return out
}

func TestConsumeRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{queue: messages(1, 2)}
	core, logs := observer.New(zap.DebugLevel)
	c := newTestConsumer(reader, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []int64
	failures := 2
	err := c.Consume(ctx, func(_ context.Context, msg kafkago.Message) error {
		handled = append(handled, msg.Offset)
		if msg.Offset == 1 && failures > 0 {
			failures--
			return errors.New("store unavailable")
		}
		if msg.Offset == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []int64{1, 1, 1, 2}, handled)
	assert.Equal(t, []int64{1, 2}, reader.Committed())
	assert.Len(t, logs.FilterMessage("message handler failed, retrying").All(), 2)
}

func TestConsumeStopsWithoutCommitWhenCancelledDuringRetry(t *testing.T) {
	reader := &fakeReader{queue: messages(7, 8)}
	c := newTestConsumer(reader, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	err := c.Consume(ctx, func(_ context.Context, msg kafkago.Message) error {
		require.Equal(t, int64(7), msg.Offset)
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("store unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, attempts)
	assert.Empty(t, reader.Committed())
}

func TestConsumeCommitsPastPermanentFailure(t *testing.T) {
	reader := &fakeReader{queue: messages(3, 4)}
	core, logs := observer.New(zap.DebugLevel)
	c := newTestConsumer(reader, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []int64
	err := c.Consume(ctx, func(_ context.Context, msg kafkago.Message) error {
		handled = append(handled, msg.Offset)
		if msg.Offset == 3 {
			return backoff.Permanent(errors.New("unsupported schema"))
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []int64{3, 4}, handled)
	assert.Equal(t, []int64{3, 4}, reader.Committed())
	assert.Len(t, logs.FilterMessage("dropping message after permanent failure").All(), 1)
}
