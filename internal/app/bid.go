package app

import (
	"context"
	"time"

	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/inbound"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BidService implements the bid use cases
type BidService struct {
	store      outbound.RecordStore
	limiter    outbound.RateLimiter
	dispatcher *Dispatcher
	units      *unitRunner
	logger     zerolog.Logger
}

type BidServiceParams struct {
	Store       outbound.RecordStore
	RateLimiter outbound.RateLimiter
	Dispatcher  *Dispatcher
	Rules       ledger.Rules
	MaxAttempts int
	Now         func() time.Time
	Logger      zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	logger := params.Logger.With().Str("component", "bid_service").Logger()
	return &BidService{
		store:      params.Store,
		limiter:    params.RateLimiter,
		dispatcher: params.Dispatcher,
		units:      newUnitRunner(params.Store, params.Rules, params.MaxAttempts, params.Now, logger),
		logger:     logger,
	}
}

// PlaceBid admits a bid and lets standing proxy mandates answer it in the same unit
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*inbound.Admission, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount.String()).
		Bool("proxy", req.ProxyCeiling != nil).
		Msg("Attempting to place bid")

	if err := s.allow(ctx, req.BidderID); err != nil {
		return nil, err
	}

	var placed *bid.Bid
	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		b, err := l.Admit(ledger.BidRequest{
			BidderID:     req.BidderID,
			Amount:       req.Amount,
			ProxyCeiling: req.ProxyCeiling,
		})
		placed = b
		return err
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("auction_id", req.AuctionID.String()).
			Str("bidder_id", req.BidderID.String()).
			Str("amount", req.Amount.String()).
			Msg("Bid rejected")
		return nil, err
	}

	admission := newAdmission(l, placed)
	if l.Outcome().ResolverCapped {
		s.logger.Warn().Str("auction_id", req.AuctionID.String()).Msg("Proxy resolution stopped at its step quota")
	}
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bid_id", placed.ID.String()).
		Str("current_bid", admission.Delta.CurrentBid.String()).
		Int("bid_count", admission.Delta.BidCount).
		Int("placed", len(admission.Placed)).
		Bool("extended", admission.Delta.Extended).
		Msg("Bid placed successfully")
	return admission, nil
}

// SetupProxyBid registers a proxy mandate. With an initial bid it is a proxy PlaceBid.
func (s *BidService) SetupProxyBid(ctx context.Context, req inbound.SetupProxyBidRequest) (*inbound.Admission, error) {
	if req.InitialBid != nil {
		ceiling := req.Ceiling
		return s.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID:    req.AuctionID,
			BidderID:     req.BidderID,
			Amount:       *req.InitialBid,
			ProxyCeiling: &ceiling,
		})
	}

	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("ceiling", req.Ceiling.String()).
		Msg("Registering proxy mandate")

	if err := s.allow(ctx, req.BidderID); err != nil {
		return nil, err
	}

	var row *bid.Bid
	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		b, err := l.Register(req.BidderID, req.Ceiling)
		row = b
		return err
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("auction_id", req.AuctionID.String()).
			Str("bidder_id", req.BidderID.String()).
			Msg("Proxy mandate rejected")
		return nil, err
	}
	return newAdmission(l, row), nil
}

// RetractBid withdraws a bid inside the grace window
func (s *BidService) RetractBid(ctx context.Context, req inbound.RetractBidRequest) (*inbound.Retraction, error) {
	s.logger.Info().
		Str("bid_id", req.BidID.String()).
		Str("requested_by", req.RequestedBy.String()).
		Msg("Attempting to retract bid")

	target, err := s.store.GetBid(ctx, req.BidID)
	if err != nil {
		return nil, err
	}

	var retracted *bid.Bid
	l, err := s.units.apply(ctx, target.AuctionID, func(l *ledger.Ledger) error {
		b, err := l.Retract(req.BidID, req.RequestedBy, req.Reason)
		retracted = b
		return err
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).Str("bid_id", req.BidID.String()).Msg("Retraction rejected")
		return nil, err
	}

	result := &inbound.Retraction{Bid: retracted.Clone(), Delta: l.Delta()}
	if leader := l.Leader(); leader != nil {
		result.Leader = leader.Clone()
	}
	s.logger.Info().
		Str("bid_id", req.BidID.String()).
		Str("auction_id", target.AuctionID.String()).
		Str("current_bid", result.Delta.CurrentBid.String()).
		Msg("Bid retracted")
	return result, nil
}

// CancelProxyBid switches off the caller's proxy mandate. Bids it already
// placed keep standing.
func (s *BidService) CancelProxyBid(ctx context.Context, req inbound.CancelProxyBidRequest) (*bid.Bid, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Msg("Cancelling proxy mandate")

	var carrier *bid.Bid
	l, err := s.units.apply(ctx, req.AuctionID, func(l *ledger.Ledger) error {
		b, err := l.CancelMandate(req.BidderID)
		carrier = b
		return err
	})
	s.publish(l)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("auction_id", req.AuctionID.String()).
			Str("bidder_id", req.BidderID.String()).
			Msg("Proxy cancellation rejected")
		return nil, err
	}

	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bid_id", carrier.ID.String()).
		Str("status", string(carrier.Status)).
		Msg("Proxy mandate cancelled")
	return carrier.Clone(), nil
}

// GetBids retrieves bids for an auction
func (s *BidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return s.store.ListBids(ctx, auctionID)
}

func (s *BidService) allow(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	ok, retryAfter := s.limiter.Allow(ctx, userID)
	if ok {
		return nil
	}
	s.logger.Warn().
		Str("bidder_id", userID.String()).
		Dur("retry_after", retryAfter).
		Msg("Bid rate limit exceeded")
	return &shared.RateLimitedError{RetryAfter: retryAfter}
}

func (s *BidService) publish(l *ledger.Ledger) {
	publish(s.dispatcher, l, s.units.now())
}

func publish(d *Dispatcher, l *ledger.Ledger, now time.Time) {
	if d == nil || l == nil || !l.Dirty() {
		return
	}
	d.Dispatch(d.Events(l, now))
}

func newAdmission(l *ledger.Ledger, created *bid.Bid) *inbound.Admission {
	a := &inbound.Admission{Delta: l.Delta()}
	for _, b := range l.Bids() {
		if b.ID == created.ID {
			a.Bid = b.Clone()
		}
		if b.IsWinning() {
			a.Leader = b.Clone()
		}
	}
	for _, p := range l.Outcome().Placements {
		a.Placed = append(a.Placed, p.Bid)
	}
	return a
}
