package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donorlink/internal/outbox"
	"donorlink/internal/outbox/store"
	"donorlink/internal/platform/kafka"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func appendEvents(t *testing.T, s *store.InMemoryStore, aggregateID string, n int) {
	t.Helper()
	for range n {
		e, err := outbox.NewEvent(outbox.AggregateBloodRequest, aggregateID, outbox.EventContactStatusChanged, map[string]int{"n": 1}, now)
		require.NoError(t, err)
		require.NoError(t, s.Append(context.Background(), e))
	}
}

func TestProcessBatch(t *testing.T) {
	t.Run("publishes keyed by aggregate and marks processed", func(t *testing.T) {
		s := store.NewInMemoryStore()
		appendEvents(t, s, "request-1", 2)
		pub := &recordingPublisher{}
		r := New(s, pub, "donorlink.request-events")

		n, err := r.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, pub.msgs, 2)
		assert.Equal(t, "donorlink.request-events", pub.msgs[0].Topic)
		assert.Equal(t, []byte("request-1"), pub.msgs[0].Key)
		assert.Equal(t, outbox.EventContactStatusChanged, pub.msgs[0].Headers["event_type"])

		n, err = r.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("leaves events pending when publishing fails", func(t *testing.T) {
		s := store.NewInMemoryStore()
		appendEvents(t, s, "request-2", 1)
		r := New(s, &recordingPublisher{err: errors.New("broker down")}, "topic")

		_, err := r.ProcessBatch(context.Background())
		require.Error(t, err)

		pending, err := s.FetchUnprocessed(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("respects the batch size", func(t *testing.T) {
		s := store.NewInMemoryStore()
		appendEvents(t, s, "request-3", 5)
		r := New(s, &recordingPublisher{}, "topic", WithBatchSize(2))

		n, err := r.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestRunDrainsAndStops(t *testing.T) {
	s := store.NewInMemoryStore()
	appendEvents(t, s, "request-4", 5)
	pub := &recordingPublisher{}
	r := New(s, pub, "topic", WithInterval(5*time.Millisecond), WithBatchSize(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
