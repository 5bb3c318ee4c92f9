package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:auction:"

// leaveScript decrements a user's instance count and drops the field at zero,
// returning the number of users left.
var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return redis.call('HLEN', KEYS[1])
`)

// PresenceStore keeps one hash per auction: field = user id, value = number
// of instances on which the user watches the auction.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

type PresenceStoreParams struct {
	RedisClient *redis.Client
	// TTL bounds how long counts from a crashed instance linger.
	TTL time.Duration
}

func NewPresenceStore(params PresenceStoreParams) *PresenceStore {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PresenceStore{client: params.RedisClient, ttl: ttl}
}

func presenceKey(auctionID uuid.UUID) string { return presenceKeyPrefix + auctionID.String() }

// Join records that userID watches the auction from one more instance and
// returns the number of distinct users.
func (s *PresenceStore) Join(ctx context.Context, auctionID, userID uuid.UUID) (int, error) {
	key := presenceKey(auctionID)
	var hlen *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, userID.String(), 1)
		pipe.Expire(ctx, key, s.ttl)
		hlen = pipe.HLen(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record presence: %w", err)
	}
	return int(hlen.Val()), nil
}

// Leave undoes one Join and returns the number of distinct users left.
func (s *PresenceStore) Leave(ctx context.Context, auctionID, userID uuid.UUID) (int, error) {
	n, err := leaveScript.Run(ctx, s.client, []string{presenceKey(auctionID)}, userID.String()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to release presence: %w", err)
	}
	return n, nil
}

// Count returns the number of distinct users watching the auction.
func (s *PresenceStore) Count(ctx context.Context, auctionID uuid.UUID) (int, error) {
	n, err := s.client.HLen(ctx, presenceKey(auctionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read presence: %w", err)
	}
	return int(n), nil
}
