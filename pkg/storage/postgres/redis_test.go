package postgres

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ehrops/pkg/config"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		client, err := NewRedisClient(config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		client, err := NewRedisClient(config.RedisConfig{URL: "redis://" + mr.Addr(), MaxRetries: 3, PoolSize: 5})
		require.NoError(t, err)
		defer client.Close()

		require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewRedisClient(config.RedisConfig{URL: "://nope"})
		assert.ErrorContains(t, err, "invalid redis URL")
	})

	t.Run("unreachable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewRedisClient(config.RedisConfig{URL: "redis://" + addr})
		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}
