package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezweb/internal/platform/config"
)

func TestNewWithoutURLDisablesCache(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptions(t *testing.T) {
	t.Run("config overrides the URL defaults", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://cache:6380/2",
			PoolSize:     20,
			MinIdleConns: 4,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 20, opts.PoolSize)
		assert.Equal(t, 4, opts.MinIdleConns)
		assert.Equal(t, 2*time.Second, opts.DialTimeout)
	})

	t.Run("zero values keep the URL defaults", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://localhost:6379"})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Zero(t, opts.MinIdleConns)
	})

	t.Run("malformed URL", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}
