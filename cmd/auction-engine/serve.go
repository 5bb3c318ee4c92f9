package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"auction-engine/internal/adapters/rest"
	"auction-engine/internal/adapters/scheduler"
	"auction-engine/internal/adapters/ws"
	"auction-engine/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Starting auction engine...")

	e, err := newEngine(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer e.Close()

	sweeper := scheduler.NewSweeper(scheduler.SweeperParams{
		AuctionService: e.auctions,
		Interval:       cfg.Engine.SweepInterval,
		Logger:         log.Logger,
	})
	sweeper.Start()

	wsHandler := ws.NewHandler(ws.WsHandlerParams{
		Rooms:          e.hub,
		AuctionService: e.auctions,
		BidService:     e.bids,
		Config:         cfg.WebSocket,
		Logger:         log.Logger,
	})

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.SetupRouter(rest.RouterParams{
		Handler: rest.NewHandler(rest.HandlerParams{
			AuctionService: e.auctions,
			BidService:     e.bids,
			Logger:         log.Logger,
		}),
		WebSocket: wsHandler.HandleWebSocket,
		Logger:    log.Logger,
	})

	server := rest.NewServer(rest.ServerParams{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Handler: router,
		Logger:  log.Logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			runErr = err
		}
	}

	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sweeper.Stop()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown: %w", err)
		}
	}

	log.Info().Msg("Graceful shutdown completed")
	return runErr
}
