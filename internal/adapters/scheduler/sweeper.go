// Package scheduler drives the lifecycle of auctions from the clock.
package scheduler

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain/shared"

	"github.com/rs/zerolog"
)

// DefaultInterval is how often due auctions are looked for.
const DefaultInterval = 5 * time.Second

// SweepService runs one lifecycle pass.
type SweepService interface {
	Sweep(ctx context.Context) (*shared.SweepReport, error)
}

// Sweeper starts auctions whose start time has come and ends the expired
// ones. Every instance may run one; the store's version check keeps each
// transition single.
type Sweeper struct {
	service  SweepService
	interval time.Duration
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type SweeperParams struct {
	AuctionService SweepService
	Interval       time.Duration
	Logger         zerolog.Logger
}

func NewSweeper(params SweeperParams) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	interval := params.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		service:  params.AuctionService,
		interval: interval,
		logger:   params.Logger.With().Str("component", "auction_sweeper").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting auction sweeper")

	s.wg.Add(1)
	go s.loop()
}

// Stop gracefully stops the sweeper, waiting for a pass in flight
func (s *Sweeper) Stop() {
	s.logger.Info().Msg("Stopping auction sweeper")
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(s.ctx)
		case <-s.ctx.Done():
			s.logger.Info().Msg("Sweeper loop stopped")
			return
		}
	}
}

// RunOnce performs a single pass and logs what it did.
func (s *Sweeper) RunOnce(ctx context.Context) *shared.SweepReport {
	report, err := s.service.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Sweep failed")
		return nil
	}
	if report.Due == 0 {
		return report
	}

	event := s.logger.Info()
	if report.Failed > 0 {
		event = s.logger.Warn()
	}
	event.
		Int("due", report.Due).
		Int("started", report.Started).
		Int("ended", report.Ended).
		Int("conflicts", report.Conflicts).
		Int("failed", report.Failed).
		Msg("Sweep completed")
	return report
}
