package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "ratelimit:bid:"

// RedisLimiter shares the sliding window across instances with one sorted set
// per user, scored by admission time in milliseconds.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

type RedisLimiterParams struct {
	RedisClient *redis.Client
	Limit       int
	Window      time.Duration
	Now         func() time.Time
	Logger      zerolog.Logger
}

// NewRedisLimiter creates a limiter backed by Redis
func NewRedisLimiter(params RedisLimiterParams) *RedisLimiter {
	l := &RedisLimiter{
		client: params.RedisClient,
		limit:  params.Limit,
		window: params.Window,
		now:    params.Now,
		logger: params.Logger.With().Str("component", "redis_rate_limiter").Logger(),
	}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Allow records an attempt if it fits in the window. When Redis cannot be
// reached the attempt is allowed.
func (l *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, time.Duration) {
	key := keyPrefix + userID.String()
	now := l.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - l.window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		count = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		l.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Rate limiter unavailable, allowing request")
		return true, 0
	}
	if count.Val() <= int64(l.limit) {
		return true, 0
	}

	// Over quota: the attempt does not count against the window.
	if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
		l.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to roll back rejected attempt")
	}
	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return false, l.window
	}
	retryAfter := time.Duration(int64(oldest[0].Score)+l.window.Milliseconds()-nowMs) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}
