package main

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/adapters/broadcaster"
	"auction-engine/internal/adapters/db"
	"auction-engine/internal/adapters/hub"
	"auction-engine/internal/adapters/memory"
	"auction-engine/internal/adapters/ratelimit"
	redisadapter "auction-engine/internal/adapters/redis"
	"auction-engine/internal/app"
	"auction-engine/internal/config"
	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/ports/outbound"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// presenceTTL bounds how long a crashed instance's watchers stay counted.
const presenceTTL = 24 * time.Hour

// engine is the set of components shared by every command.
type engine struct {
	conn        *db.Connection
	redisClient *redis.Client
	hub         *hub.Hub
	relay       *broadcaster.RedisBroadcaster
	limiter     outbound.RateLimiter
	dispatcher  *app.Dispatcher
	auctions    *app.AuctionService
	bids        *app.BidService
}

func buildRules(cfg config.EngineConfig) (ledger.Rules, error) {
	rules := ledger.DefaultRules()
	if cfg.IncrementTable != "" {
		table, err := auction.ParseIncrementTable(cfg.IncrementTable)
		if err != nil {
			return ledger.Rules{}, fmt.Errorf("invalid increment table: %w", err)
		}
		rules.Increments = table
	}
	rules.Extension = auction.ExtensionPolicy{
		Window:    cfg.AntiSnipeWindow,
		Threshold: cfg.AntiSnipeThreshold,
	}
	rules.RetractionWindow = cfg.RetractionWindow
	return rules, nil
}

// newEngine opens the stores and builds the services. Background loops are
// bound to ctx.
func newEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*engine, error) {
	rules, err := buildRules(cfg.Engine)
	if err != nil {
		return nil, err
	}

	e := &engine{}

	var store outbound.RecordStore
	if cfg.Database.Driver == config.DriverMemory {
		store = memory.NewStore()
		logger.Warn().Msg("Using in-memory record store, state is lost on restart")
	} else {
		e.conn, err = db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")
		store = db.NewStore(e.conn)
	}

	if cfg.UsesRedis() {
		e.redisClient, err = redisadapter.Connect(ctx, cfg.Redis)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	}

	hubParams := hub.HubParams{
		RoomTTL: cfg.Engine.RoomTTL,
		Logger:  logger,
	}
	if cfg.Broadcast.Backend == config.BackendRedis {
		hubParams.Presence = redisadapter.NewPresenceStore(redisadapter.PresenceStoreParams{
			RedisClient: e.redisClient,
			TTL:         presenceTTL,
		})
	}
	e.hub = hub.New(hubParams)
	go e.hub.Run(ctx)

	var fanout outbound.Broadcaster = e.hub
	if cfg.Broadcast.Backend == config.BackendRedis {
		e.relay = broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
			RedisClient: e.redisClient,
			Local:       e.hub,
			Logger:      logger,
		})
		if err := e.relay.Start(ctx); err != nil {
			e.Close()
			return nil, err
		}
		e.hub.RelayPresence(e.relay)
		fanout = e.relay
	}

	switch cfg.Engine.RateLimitBackend {
	case config.BackendRedis:
		e.limiter = ratelimit.NewRedisLimiter(ratelimit.RedisLimiterParams{
			RedisClient: e.redisClient,
			Limit:       cfg.Engine.RateLimitQuota,
			Window:      cfg.Engine.RateLimitWindow,
			Logger:      logger,
		})
	default:
		limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterParams{
			Limit:  cfg.Engine.RateLimitQuota,
			Window: cfg.Engine.RateLimitWindow,
		})
		go limiter.Run(ctx, cfg.Engine.RateLimitWindow)
		e.limiter = limiter
	}

	e.dispatcher = app.NewDispatcher(app.DispatcherParams{
		Broadcaster: fanout,
		Workers:     cfg.Engine.DispatchWorkers,
		QueueSize:   cfg.Engine.DispatchQueue,
		Logger:      logger,
	})

	e.auctions = app.NewAuctionService(app.AuctionServiceParams{
		Store:         store,
		Dispatcher:    e.dispatcher,
		Rules:         rules,
		MaxAttempts:   cfg.Engine.MaxAttempts,
		MaxExtensions: cfg.Engine.MaxExtensions,
		SweepBatch:    cfg.Engine.SweepBatch,
		SweepWorkers:  cfg.Engine.SweepWorkers,
		Now:           time.Now,
		Logger:        logger,
	})
	e.bids = app.NewBidService(app.BidServiceParams{
		Store:       store,
		RateLimiter: e.limiter,
		Dispatcher:  e.dispatcher,
		Rules:       rules,
		MaxAttempts: cfg.Engine.MaxAttempts,
		Now:         time.Now,
		Logger:      logger,
	})
	logger.Info().
		Str("increments", rules.Increments.String()).
		Str("rate_limit_backend", cfg.Engine.RateLimitBackend).
		Str("broadcast_backend", cfg.Broadcast.Backend).
		Msg("Business services initialized")

	return e, nil
}

// Close drains pending events and releases connections.
func (e *engine) Close() {
	if e.dispatcher != nil {
		e.dispatcher.Stop()
	}
	if e.relay != nil {
		_ = e.relay.Close()
	}
	if e.redisClient != nil {
		_ = e.redisClient.Close()
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
}
