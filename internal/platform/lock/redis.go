package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "donorlink/pkg/domain-errors"
)

const (
	defaultTTL   = 5 * time.Second
	retryBackoff = 20 * time.Millisecond
	keyPrefix    = "donorlink:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock: SET NX PX with a random token. A holder that outlives
// the TTL loses the lease.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Lock polls until the lease is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryBackoff)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "timed out waiting for lock")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "lock backend unavailable")
		}
		if ok {
			return r.unlocker(redisKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "timed out waiting for lock")
		case <-ticker.C:
		}
	}
}

func (r *Redis) unlocker(redisKey, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn("failed to release lock", "key", redisKey, "error", err)
			}
		})
	}
}
