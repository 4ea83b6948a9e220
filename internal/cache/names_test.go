package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"community-chat/internal/mocks"
)

// requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

func setupNameCache(t *testing.T, next *mocks.UserRepositoryMock) *NameCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	c := NewNameCache(client, next, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))
	c.prefix = "test:" + t.Name() + ":"
	t.Cleanup(func() {
		_ = client.Del(ctx, c.prefix+"u1", c.prefix+"u2", c.prefix+"u3").Err()
		_ = client.Close()
	})
	return c
}

func TestNameCacheLoadsMissesOnce(t *testing.T) {
	next := new(mocks.UserRepositoryMock)
	c := setupNameCache(t, next)
	ctx := context.Background()

	next.On("DisplayNames", mock.Anything, []string{"u1", "u2"}).Return(map[string]string{"u1": "Alice", "u2": "Bob"}, nil).Once()

	names, err := c.DisplayNames(ctx, []string{"u1", "u2", "u1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Alice", "u2": "Bob"}, names)

	names, err = c.DisplayNames(ctx, []string{"u2", "u1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Alice", "u2": "Bob"}, names)

	next.AssertExpectations(t)
}

func TestNameCacheOnlyAsksForMissing(t *testing.T) {
	next := new(mocks.UserRepositoryMock)
	c := setupNameCache(t, next)
	ctx := context.Background()

	next.On("DisplayNames", mock.Anything, []string{"u1"}).Return(map[string]string{"u1": "Alice"}, nil).Once()
	next.On("DisplayNames", mock.Anything, []string{"u3"}).Return(map[string]string{}, nil).Once()

	_, err := c.DisplayNames(ctx, []string{"u1"})
	require.NoError(t, err)

	names, err := c.DisplayNames(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Alice"}, names)

	next.AssertExpectations(t)
}

func TestNameCacheFallsThroughWhenRedisDown(t *testing.T) {
	next := new(mocks.UserRepositoryMock)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	c := NewNameCache(client, next, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))

	next.On("DisplayNames", mock.Anything, []string{"u1"}).Return(map[string]string{"u1": "Alice"}, nil).Once()

	names, err := c.DisplayNames(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", names["u1"])
	next.AssertExpectations(t)
}
