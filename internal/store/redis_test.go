package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofmeet/internal/store"
)

func TestNewRedisAppliesConnectionOptions(t *testing.T) {
	r := store.NewRedis("redis.internal:6380", "s3cret", 3)
	require.NotNil(t, r.Client)

	opts := r.Client.Options()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 10, opts.PoolSize)
}
