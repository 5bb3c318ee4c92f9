package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, clk *fakeClock) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(RedisLimiterParams{
		RedisClient: client,
		Limit:       limit,
		Window:      time.Minute,
		Now:         clk.Now,
		Logger:      zerolog.Nop(),
	}), srv
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, srv := newRedisLimiter(t, 3, clk)
	ctx := context.Background()
	user := uuid.New()

	for i := 0; i < 3; i++ {
		ok, retryAfter := l.Allow(ctx, user)
		require.True(t, ok, "attempt %d", i+1)
		assert.Zero(t, retryAfter)
		clk.Advance(10 * time.Second)
	}

	ok, retryAfter := l.Allow(ctx, user)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)

	members, err := srv.ZMembers(keyPrefix + user.String())
	require.NoError(t, err)
	assert.Len(t, members, 3, "a rejected attempt is rolled back")

	ok, _ = l.Allow(ctx, uuid.New())
	assert.True(t, ok, "other users are unaffected")

	clk.Advance(31 * time.Second)
	ok, _ = l.Allow(ctx, user)
	assert.True(t, ok, "oldest attempt left the window")
	assert.True(t, srv.Exists(keyPrefix+user.String()))
	assert.Equal(t, time.Minute, srv.TTL(keyPrefix+user.String()))
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	tests := []struct {
		name   string
		client func(t *testing.T) *redis.Client
	}{
		{
			name: "nothing listening",
			client: func(*testing.T) *redis.Client {
				return redis.NewClient(&redis.Options{
					Addr:        "127.0.0.1:1",
					DialTimeout: 200 * time.Millisecond,
					MaxRetries:  -1,
				})
			},
		},
		{
			name: "server went away",
			client: func(t *testing.T) *redis.Client {
				srv := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
				srv.Close()
				return client
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := tt.client(t)
			defer client.Close()
			l := NewRedisLimiter(RedisLimiterParams{RedisClient: client, Limit: 1, Window: time.Minute, Logger: zerolog.Nop()})

			user := uuid.New()
			for i := 0; i < 3; i++ {
				ok, retryAfter := l.Allow(context.Background(), user)
				assert.True(t, ok, "attempt %d", i+1)
				assert.Zero(t, retryAfter)
			}
		})
	}
}
