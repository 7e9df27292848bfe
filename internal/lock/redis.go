package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
)

const keyPrefix = "placeholder:lock:doc:"

// Deletes or extends the key only while it still carries our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker is a lease-based lock shared by every replica using the same Redis.
// Held leases are renewed at a third of the TTL until released.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logging.Logger
}

// NewRedisLocker connects to redisURL and verifies it with PING.
func NewRedisLocker(ctx context.Context, redisURL string, ttl, wait time.Duration) (*RedisLocker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock TTL must be positive")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logging.NewLogger("Lock"),
	}, nil
}

func (r *RedisLocker) Acquire(ctx context.Context, documentID string) (Release, error) {
	key := lockKey(documentID)
	token := uuid.New().String()

	waitCtx := ctx
	if r.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		ok, err := r.client.SetNX(waitCtx, key, token, r.ttl).Result()
		if err == nil && ok {
			break
		}
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock for %s: %w", documentID, err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, svcerrors.NewLockTimeoutError(documentID, r.wait)
		case <-time.After(backoff(attempt)):
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.renew(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				r.logger.Warn("Lock release failed; lease will expire", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *RedisLocker) renew(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(renewInterval(r.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), renewInterval(r.ttl))
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.logger.Warn("Lock renewal failed", "key", key, "error", err)
				continue
			}
			if n == 0 {
				r.logger.Error("Lock lease lost", "key", key)
				return
			}
		}
	}
}

// Close closes the Redis client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func lockKey(documentID string) string {
	return keyPrefix + documentID
}

// backoff grows from 25ms and caps at 500ms.
func backoff(attempt int) time.Duration {
	d := 25 * time.Millisecond
	for i := 0; i < attempt && d < 500*time.Millisecond; i++ {
		d *= 2
	}
	if d > 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

func renewInterval(ttl time.Duration) time.Duration {
	if d := ttl / 3; d > 0 {
		return d
	}
	return time.Millisecond
}
