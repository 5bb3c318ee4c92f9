package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceStore_CountsDistinctUsers(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	store := NewPresenceStore(PresenceStoreParams{RedisClient: client, TTL: 10 * time.Minute})
	ctx := context.Background()
	auctionID, alice, bob := uuid.New(), uuid.New(), uuid.New()

	steps := []struct {
		name  string
		do    func() (int, error)
		count int
	}{
		{"alice joins on instance A", func() (int, error) { return store.Join(ctx, auctionID, alice) }, 1},
		{"alice joins on instance B", func() (int, error) { return store.Join(ctx, auctionID, alice) }, 1},
		{"bob joins", func() (int, error) { return store.Join(ctx, auctionID, bob) }, 2},
		{"alice leaves instance A", func() (int, error) { return store.Leave(ctx, auctionID, alice) }, 2},
		{"alice leaves instance B", func() (int, error) { return store.Leave(ctx, auctionID, alice) }, 1},
		{"count", func() (int, error) { return store.Count(ctx, auctionID) }, 1},
		{"bob leaves", func() (int, error) { return store.Leave(ctx, auctionID, bob) }, 0},
	}
	for _, step := range steps {
		n, err := step.do()
		require.NoError(t, err, step.name)
		assert.Equal(t, step.count, n, step.name)
	}
	assert.False(t, srv.Exists(presenceKey(auctionID)), "an empty hash disappears")
}

func TestPresenceStore_ExpiresStaleCounts(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	store := NewPresenceStore(PresenceStoreParams{RedisClient: client, TTL: time.Minute})
	ctx := context.Background()
	auctionID := uuid.New()

	_, err := store.Join(ctx, auctionID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, srv.TTL(presenceKey(auctionID)))

	srv.FastForward(2 * time.Minute)
	n, err := store.Count(ctx, auctionID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPresenceStore_Unavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewPresenceStore(PresenceStoreParams{RedisClient: client})
	srv.Close()

	_, err := store.Join(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
	_, err = store.Count(context.Background(), uuid.New())
	assert.Error(t, err)
}
