// Package redis holds the Redis client construction shared by the broker
// gateway. The gateway dials a fresh client per operation, so construction
// lives here rather than a long-lived provider.
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"jobkeeper/pkg/retry"
)

// Options describe a Redis endpoint.
type Options struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds connection establishment (default 5s).
	DialTimeout time.Duration
}

// Open returns a new client for the endpoint. The caller owns the client
// and must close it on every exit path.
func Open(o Options) *goredis.Client {
	dial := o.DialTimeout
	if dial == 0 {
		dial = 5 * time.Second
	}
	return goredis.NewClient(&goredis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: dial,
	})
}

// Ping dials the endpoint, pings it and closes the connection.
func Ping(ctx context.Context, o Options) error {
	c := Open(o)
	defer c.Close()
	return c.Ping(ctx).Err()
}

// WaitForRedis waits for the endpoint to become reachable at process start.
func WaitForRedis(ctx context.Context, o Options, maxAttempts int) error {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 15 * time.Second

	return retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return Ping(ctx, o)
	}, func(err error) bool {
		return true
	})
}
