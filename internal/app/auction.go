package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/inbound"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultMaxExtensions = 10
	defaultSweepBatch    = 100
	defaultSweepWorkers  = 8
)

// AuctionService implements the auction use cases and the lifecycle sweep
type AuctionService struct {
	store         outbound.RecordStore
	dispatcher    *Dispatcher
	units         *unitRunner
	maxExtensions int
	sweepBatch    int
	sweepWorkers  int
	logger        zerolog.Logger
}

type AuctionServiceParams struct {
	Store         outbound.RecordStore
	Dispatcher    *Dispatcher
	Rules         ledger.Rules
	MaxAttempts   int
	MaxExtensions int
	SweepBatch    int
	SweepWorkers  int
	Now           func() time.Time
	Logger        zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	logger := params.Logger.With().Str("component", "auction_service").Logger()
	s := &AuctionService{
		store:         params.Store,
		dispatcher:    params.Dispatcher,
		units:         newUnitRunner(params.Store, params.Rules, params.MaxAttempts, params.Now, logger),
		maxExtensions: params.MaxExtensions,
		sweepBatch:    params.SweepBatch,
		sweepWorkers:  params.SweepWorkers,
		logger:        logger,
	}
	if s.maxExtensions <= 0 {
		s.maxExtensions = defaultMaxExtensions
	}
	if s.sweepBatch <= 0 {
		s.sweepBatch = defaultSweepBatch
	}
	if s.sweepWorkers <= 0 {
		s.sweepWorkers = defaultSweepWorkers
	}
	return s
}

// CreateAuction publishes a listing's auction terms
func (s *AuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	s.logger.Info().
		Str("listing_id", req.ListingID.String()).
		Str("seller_id", req.SellerID.String()).
		Str("starting_price", req.StartingPrice.String()).
		Time("start_time", req.StartTime).
		Time("end_time", req.EndTime).
		Msg("Attempting to create auction")

	now := s.units.now()
	if err := validateTerms(req, now); err != nil {
		s.logger.Warn().Err(err).Str("listing_id", req.ListingID.String()).Msg("Invalid auction terms")
		return nil, err
	}

	start := req.StartTime
	if start.IsZero() {
		start = now
	}
	maxExtensions := s.maxExtensions
	if req.MaxExtensions != nil {
		maxExtensions = *req.MaxExtensions
	}

	a := &auction.Auction{
		ID:              uuid.New(),
		ListingID:       req.ListingID,
		SellerID:        req.SellerID,
		StartingPrice:   req.StartingPrice,
		CurrentBid:      req.StartingPrice,
		ReservePrice:    req.ReservePrice,
		MinBidIncrement: req.MinBidIncrement,
		StartTime:       start,
		EndTime:         req.EndTime,
		MaxExtensions:   maxExtensions,
		Status:          auction.StatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if start.After(now) {
		a.Status = auction.StatusScheduled
	}
	a.RefreshReserve()

	if err := s.store.CreateAuction(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	s.logger.Info().
		Str("auction_id", a.ID.String()).
		Str("status", string(a.Status)).
		Msg("Auction created successfully")
	return a, nil
}

func validateTerms(req inbound.CreateAuctionRequest, now time.Time) error {
	switch {
	case req.ListingID == uuid.Nil || req.SellerID == uuid.Nil:
		return fmt.Errorf("%w: listing_id and seller_id are required", shared.ErrInvalidAuction)
	case !req.StartingPrice.IsPositive():
		return fmt.Errorf("%w: starting price must be greater than 0", shared.ErrInvalidAuction)
	case req.ReservePrice != nil && req.ReservePrice.LessThan(req.StartingPrice):
		return fmt.Errorf("%w: reserve price below starting price", shared.ErrInvalidAuction)
	case req.MinBidIncrement != nil && !req.MinBidIncrement.IsPositive():
		return fmt.Errorf("%w: minimum increment must be greater than 0", shared.ErrInvalidAuction)
	case !req.EndTime.After(now):
		return fmt.Errorf("%w: end time must be in the future", shared.ErrInvalidAuction)
	case !req.StartTime.IsZero() && !req.EndTime.After(req.StartTime):
		return fmt.Errorf("%w: end time must be after start time", shared.ErrInvalidAuction)
	case req.MaxExtensions != nil && *req.MaxExtensions < 0:
		return fmt.Errorf("%w: max extensions cannot be negative", shared.ErrInvalidAuction)
	}
	return nil
}

// GetAuction retrieves an auction by ID
func (s *AuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	s.logger.Debug().Str("auction_id", auctionID.String()).Msg("Retrieving auction")

	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		s.logger.Debug().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to retrieve auction")
		return nil, err
	}
	return a, nil
}

// ListAuctions retrieves a list of auctions
func (s *AuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	return s.store.ListAuctions(ctx, req.Status, req.Page, req.PageSize)
}

// ExtendAuction pushes the end time on the seller's request
func (s *AuctionService) ExtendAuction(ctx context.Context, req inbound.ExtendAuctionRequest) (*shared.AuctionDelta, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("requested_by", req.RequestedBy.String()).
		Int("minutes", req.Minutes).
		Msg("Attempting to extend auction")

	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		return l.Extend(req.RequestedBy, req.Minutes, req.Reason)
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).Str("auction_id", req.AuctionID.String()).Msg("Extension rejected")
		return nil, err
	}

	delta := l.Delta()
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Time("new_end_time", delta.NewEndTime).
		Int("extension_count", delta.ExtensionCount).
		Msg("Auction extended")
	return &delta, nil
}

// EndAuction ends an auction whose clock has run out
func (s *AuctionService) EndAuction(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionEndResult, error) {
	s.logger.Info().Str("auction_id", auctionID.String()).Msg("Ending auction")

	l, err := s.units.apply(ctx, auctionID, func(l *ledger.Ledger) error {
		a := l.Auction()
		now := l.Now()
		if a.ShouldStart(now) {
			if err := l.Activate(); err != nil {
				return err
			}
		}
		if a.IsBiddable() && !a.IsExpired(now) {
			return fmt.Errorf("%w: auction runs until %s", shared.ErrInvalidTransition, a.EndTime.Format(time.RFC3339))
		}
		return l.Finalize()
	})
	s.publish(l)
	if err != nil {
		return nil, err
	}

	result := l.Outcome().Ended
	logger := s.logger.Info().Str("auction_id", auctionID.String()).Int("total_bids", result.TotalBids)
	if result.WinnerID != nil {
		logger = logger.Str("winner_id", result.WinnerID.String())
	}
	if result.WinningBid != nil {
		logger = logger.Str("winning_bid", result.WinningBid.String())
	}
	logger.Bool("reserve_met", result.ReserveMet).Msg("Auction ended successfully")
	return result, nil
}

// activateAuction opens a scheduled auction whose start time has passed
func (s *AuctionService) activateAuction(ctx context.Context, auctionID uuid.UUID) error {
	l, err := s.units.apply(ctx, auctionID, func(l *ledger.Ledger) error {
		if !l.Auction().ShouldStart(l.Now()) {
			return nil
		}
		return l.Activate()
	})
	s.publish(l)
	if err == nil && l.Outcome().Started {
		s.logger.Info().Str("auction_id", auctionID.String()).Msg("Auction started")
	}
	return err
}

// SettleAuction marks an ended auction as handed over to payment capture
func (s *AuctionService) SettleAuction(ctx context.Context, req inbound.SettleAuctionRequest) (*auction.Auction, error) {
	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		return l.Settle(req.RequestedBy)
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("auction_id", req.AuctionID.String()).
			Str("requested_by", req.RequestedBy.String()).
			Msg("Settlement rejected")
		return nil, err
	}
	s.logger.Info().Str("auction_id", req.AuctionID.String()).Msg("Auction settled")
	return l.Auction().Clone(), nil
}

// CancelAuction withdraws an auction that has not ended
func (s *AuctionService) CancelAuction(ctx context.Context, req inbound.CancelAuctionRequest) (*auction.Auction, error) {
	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		return l.Cancel(req.RequestedBy, req.Reason)
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).Str("auction_id", req.AuctionID.String()).Msg("Cancellation rejected")
		return nil, err
	}
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("requested_by", req.RequestedBy.String()).
		Str("reason", req.Reason).
		Msg("Auction cancelled")
	return l.Auction().Clone(), nil
}

// Sweep ends expired auctions and opens scheduled ones whose start has passed.
func (s *AuctionService) Sweep(ctx context.Context) (*shared.SweepReport, error) {
	now := s.units.now()
	due, err := s.store.ListDue(ctx, now, s.sweepBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due auctions")
		return nil, fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}

	report := &shared.SweepReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}
	s.logger.Debug().Int("count", len(due)).Msg("Found due auctions")

	var mu sync.Mutex
	tally := func(err error, ok *int) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			*ok++
		case errors.Is(err, shared.ErrConflict):
			report.Conflicts++
		case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrAuctionEnded):
			// Another instance got there first.
		default:
			report.Failed++
		}
	}

	p := pool.New().WithMaxGoroutines(s.sweepWorkers)
	for _, a := range due {
		a := a
		p.Go(func() {
			if a.Status == auction.StatusScheduled && !a.IsExpired(now) {
				err := s.activateAuction(ctx, a.ID)
				tally(err, &report.Started)
				if err != nil {
					s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to start auction")
				}
				return
			}
			_, err := s.EndAuction(ctx, a.ID)
			tally(err, &report.Ended)
			if err != nil && shared.Classify(err) != shared.KindPolicy {
				s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to end auction")
			}
		})
	}
	p.Wait()

	s.logger.Info().
		Int("due", report.Due).
		Int("started", report.Started).
		Int("ended", report.Ended).
		Int("conflicts", report.Conflicts).
		Int("failed", report.Failed).
		Msg("Lifecycle sweep completed")
	return report, nil
}

func (s *AuctionService) publish(l *ledger.Ledger) {
	publish(s.dispatcher, l, s.units.now())
}
