// Package relay drains the outbox table into Kafka.
package relay

import (
	"context"
	"log/slog"
	"time"

	"donorlink/internal/outbox"
	"donorlink/internal/platform/kafka"
	id "donorlink/pkg/domain"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Store is the outbox read side used by the relay.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]outbox.Event, error)
	MarkProcessed(ctx context.Context, ids []id.EventID, at time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// TxRunner scopes fetch, publish and mark to one transaction so a crash
// before commit leaves the rows for the next poll.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Relay publishes outbox events at least once, in append order per poll.
// Messages are keyed by aggregate id so one request's events share a partition.
type Relay struct {
	store     Store
	publisher Publisher
	tx        TxRunner
	topic     string
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithTx(tx TxRunner) Option {
	return func(r *Relay) {
		r.tx = tx
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func New(store Store, publisher Publisher, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		topic:     topic,
		interval:  defaultInterval,
		batch:     defaultBatch,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is done. Poll failures are logged and retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started", "topic", r.topic, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.ErrorContext(ctx, "outbox relay poll failed", "error", err)
					}
					break
				}
				if n < r.batch {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events it sent.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var published int
	err := r.inTx(ctx, func(ctx context.Context) error {
		events, err := r.store.FetchUnprocessed(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		msgs := make([]kafka.Message, len(events))
		ids := make([]id.EventID, len(events))
		for i, e := range events {
			msgs[i] = r.message(e)
			ids[i] = e.ID
		}
		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			if r.metrics != nil {
				r.metrics.PublishFailures.Inc()
			}
			return err
		}
		if err := r.store.MarkProcessed(ctx, ids, time.Now().UTC()); err != nil {
			return err
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 && r.metrics != nil {
		r.metrics.Published.Add(float64(published))
	}
	return published, nil
}

func (r *Relay) message(e outbox.Event) kafka.Message {
	return kafka.Message{
		Topic: r.topic,
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: map[string]string{
			"event_id":       e.ID.String(),
			"event_type":     e.Type,
			"aggregate_type": e.AggregateType,
			"created_at":     e.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (r *Relay) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.RunInTx(ctx, fn)
}
