// Package lease keeps two agent processes from running cycles at the same
// time.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Lease interface {
	// Acquire reports whether this process now holds the lease.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lease up if this process still holds it.
	Release(ctx context.Context) error
}

type noop struct{}

// Noop always grants the lease. Used when no redis is configured.
func Noop() Lease {
	return noop{}
}

func (noop) Acquire(context.Context) (bool, error) { return true, nil }
func (noop) Release(context.Context) error         { return nil }

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLease holds key with the given owner token for at most ttl, so a
// crashed holder cannot block the others forever.
func NewRedisLease(client *redis.Client, key, token string, ttl time.Duration) Lease {
	return &redisLease{client: client, key: key, token: token, ttl: ttl}
}

func (l *redisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, l.key).Result()
		slog.InfoContext(ctx, "cycle lease held elsewhere", "key", l.key, "holder", holder)
	}
	return ok, nil
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
