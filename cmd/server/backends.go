package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	donorservice "donorlink/internal/donor/service"
	donorstore "donorlink/internal/donor/store"
	httpapi "donorlink/internal/http"
	"donorlink/internal/outbox/relay"
	outboxstore "donorlink/internal/outbox/store"
	"donorlink/internal/platform/config"
	"donorlink/internal/platform/kafka"
	"donorlink/internal/platform/lock"
	"donorlink/internal/platform/metrics"
	"donorlink/internal/platform/postgres"
	"donorlink/internal/platform/redis"
	requestservice "donorlink/internal/request/service"
	requeststore "donorlink/internal/request/store"
)

// backends holds the storage, lock and publishing dependencies chosen from
// configuration.
// memoryOutboxCapacity bounds pending events when nothing durable backs the
// outbox and no broker may be draining it.
const memoryOutboxCapacity = 10_000

type backends struct {
	donors   donorservice.Store
	requests requestservice.Store
	events   interface {
		requestservice.Outbox
		relay.Store
	}
	tx       *postgres.TxManager
	locker   requestservice.Locker
	producer *kafka.Producer
	checks   map[string]httpapi.HealthCheck
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects to every configured backend. Unset URLs fall back to
// in-process implementations.
func openBackends(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	b := &backends{checks: map[string]httpapi.HealthCheck{}}
	if err := b.openStores(ctx, cfg.Database, log); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openLocker(ctx, cfg.Redis, log); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openProducer(ctx, cfg.Kafka, log); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) error {
	if cfg.URL == "" {
		b.donors = donorstore.NewInMemoryStore()
		b.requests = requeststore.NewInMemoryStore()
		b.events = outboxstore.NewInMemoryStore(outboxstore.WithCapacity(memoryOutboxCapacity))
		metrics.RecordBackend("store", "memory")
		log.Warn("no database configured, using in-memory stores")
		return nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	b.donors = donorstore.NewPostgres(db)
	b.requests = requeststore.NewPostgres(db)
	b.events = outboxstore.NewPostgres(db)
	b.tx = postgres.NewTxManager(db)
	b.checks["postgres"] = pinger(db)
	metrics.RecordBackend("store", "postgres")
	log.Info("postgres stores ready")
	return nil
}

func (b *backends) openLocker(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) error {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return err
	}
	if client == nil {
		b.locker = lock.NewLocal()
		metrics.RecordBackend("locker", "local")
		return nil
	}
	b.closers = append(b.closers, func() { _ = client.Close() })
	b.locker = lock.NewRedis(client.Client, cfg.LockTTL, log)
	b.checks["redis"] = client.Health
	metrics.RecordBackend("locker", "redis")
	log.Info("redis locker ready", "lock_ttl", cfg.LockTTL)
	return nil
}

func (b *backends) openProducer(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) error {
	if len(cfg.Brokers) == 0 {
		metrics.RecordBackend("relay", "disabled")
		return nil
	}
	producer, err := kafka.NewProducer(ctx, cfg.Brokers)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, producer.Close)
	if err := producer.EnsureTopic(ctx, cfg.Topic, cfg.Partitions); err != nil {
		return fmt.Errorf("provision outbox topic: %w", err)
	}
	b.producer = producer
	b.checks["kafka"] = producer.Health
	metrics.RecordBackend("relay", "kafka")
	log.Info("kafka relay ready", "topic", cfg.Topic)
	return nil
}

func pinger(db *sql.DB) httpapi.HealthCheck {
	return db.PingContext
}
