package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the shared client used by the card queue and health checks.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects with short timeouts so a slow redis fails the health
// check instead of stalling request handling. Blocking queue reads (BRPOP)
// are exempt: go-redis extends the read deadline by the block duration for
// blocking commands. The pool is sized for the API and worker processes,
// which each hold at most a handful of concurrent queue operations.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
