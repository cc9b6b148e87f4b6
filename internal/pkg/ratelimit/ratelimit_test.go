package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "book:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "book:1")
	assert.False(t, ok)

	// other keys are independent
	ok, _ = l.Allow(ctx, "book:2")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "book:1")
	assert.True(t, ok)
}

func TestMemoryLimiter_Disabled(t *testing.T) {
	l := NewMemoryLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	now := time.Now()
	l := NewMemoryLimiter(1, time.Second)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	assert.Equal(t, 0, l.Sweep())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 2, l.Sweep())
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	l := NewRedisLimiter(client, "test-ratelimit", 3, time.Minute)
	key := uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
