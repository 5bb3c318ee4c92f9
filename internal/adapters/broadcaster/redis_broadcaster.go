// Package broadcaster relays events between engine instances over Redis
// pub/sub.
package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	auctionChannelPrefix = "auction:"
	userChannelPrefix    = "user:"
)

func auctionChannel(id uuid.UUID) string { return auctionChannelPrefix + id.String() }
func userChannel(id uuid.UUID) string    { return userChannelPrefix + id.String() }

// RedisBroadcaster publishes events to Redis and relays every event seen on
// the shared channels into the local hub. Each instance holds one pattern
// subscription no matter how many clients it serves.
type RedisBroadcaster struct {
	client *redis.Client
	local  outbound.Broadcaster
	logger zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	// Local receives the events relayed from Redis, normally the hub.
	Local  outbound.Broadcaster
	Logger zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: params.RedisClient,
		local:  params.Local,
		logger: params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Publish sends an event to the room of an auction on every instance.
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	return r.send(ctx, auctionChannel(auctionID), event)
}

// Notify sends an event to every connection of a user on every instance.
func (r *RedisBroadcaster) Notify(ctx context.Context, userID uuid.UUID, event outbound.Event) error {
	return r.send(ctx, userChannel(userID), event)
}

// send never fails the caller: a broadcast that cannot reach Redis is logged
// and dropped.
func (r *RedisBroadcaster) send(ctx context.Context, channel string, event outbound.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to marshal event")
		return nil
	}

	receivers, err := r.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		r.logger.Error().Err(err).Str("channel_name", channel).Str("event_type", string(event.Type)).
			Msg("Failed to publish to Redis")
		return nil
	}

	r.logger.Debug().
		Str("channel_name", channel).
		Str("event_type", string(event.Type)).
		Int64("subscriber_count", receivers).
		Msg("Published event")
	return nil
}

// Start opens the pattern subscription and relays messages until ctx is done
// or Close is called.
func (r *RedisBroadcaster) Start(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, auctionChannelPrefix+"*", userChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to broadcast channels: %w", err)
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.listen(ctx, pubsub, r.done)

	r.logger.Info().Msg("Redis broadcast relay started")
	return nil
}

func (r *RedisBroadcaster) listen(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Msg("Redis relay panic")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Info().Msg("Redis relay channel closed")
				return
			}
			r.relay(ctx, msg.Channel, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

// relay hands one Redis message to the local hub.
func (r *RedisBroadcaster) relay(ctx context.Context, channel, payload string) {
	var event outbound.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.logger.Error().Err(err).Str("channel_name", channel).Msg("Failed to unmarshal relayed event")
		return
	}

	var err error
	switch {
	case strings.HasPrefix(channel, auctionChannelPrefix):
		var id uuid.UUID
		if id, err = uuid.Parse(strings.TrimPrefix(channel, auctionChannelPrefix)); err == nil {
			err = r.local.Publish(ctx, id, event)
		}
	case strings.HasPrefix(channel, userChannelPrefix):
		var id uuid.UUID
		if id, err = uuid.Parse(strings.TrimPrefix(channel, userChannelPrefix)); err == nil {
			err = r.local.Notify(ctx, id, event)
		}
	default:
		err = fmt.Errorf("unexpected channel %q", channel)
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("channel_name", channel).Msg("Failed to relay event")
	}
}

// Close stops the relay and releases the subscription.
func (r *RedisBroadcaster) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
