package ledger

import (
	"fmt"

	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidRequest is a human bid, optionally carrying a proxy ceiling.
type BidRequest struct {
	BidderID     uuid.UUID
	Amount       decimal.Decimal
	ProxyCeiling *decimal.Decimal
}

// Admit validates and places a bid, then lets standing proxy mandates answer.
func (l *Ledger) Admit(req BidRequest) (*bid.Bid, error) {
	if err := l.open(); err != nil {
		return nil, err
	}
	if req.BidderID == l.auction.SellerID {
		return nil, shared.ErrSelfBid
	}
	if !req.Amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	if minNext := l.NextMinBid(); req.Amount.LessThan(minNext) {
		return nil, fmt.Errorf("%w: %s < %s", shared.ErrBidTooLow, req.Amount, minNext)
	}
	if req.ProxyCeiling != nil {
		if req.ProxyCeiling.LessThan(req.Amount) {
			return nil, shared.ErrInvalidProxyCeiling
		}
		if bid.MandateFor(l.bids, req.BidderID) != nil {
			return nil, shared.ErrProxyAlreadyActive
		}
	}
	for _, b := range l.bids {
		if b.BidderID == req.BidderID && b.IsPlaced() && !b.IsRetracted() && b.Amount.Equal(req.Amount) {
			return nil, shared.ErrDuplicateAmount
		}
	}

	b := l.newBid(req.BidderID, req.Amount, req.ProxyCeiling)
	l.insert(b)
	l.place(b, false)
	l.resolve()
	return b, nil
}

// Register records a proxy mandate without bidding. If someone else leads and
// the mandate can beat them, it bids straight away.
func (l *Ledger) Register(bidderID uuid.UUID, ceiling decimal.Decimal) (*bid.Bid, error) {
	if err := l.open(); err != nil {
		return nil, err
	}
	if bidderID == l.auction.SellerID {
		return nil, shared.ErrSelfBid
	}
	if !ceiling.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	if minNext := l.NextMinBid(); ceiling.LessThan(minNext) {
		return nil, fmt.Errorf("%w: ceiling %s below next minimum %s", shared.ErrInvalidProxyCeiling, ceiling, minNext)
	}
	if bid.MandateFor(l.bids, bidderID) != nil {
		return nil, shared.ErrProxyAlreadyActive
	}

	b := l.newBid(bidderID, decimal.Zero, &ceiling)
	l.insert(b)
	if leader := l.Leader(); leader != nil && leader.BidderID != bidderID {
		l.resolve()
	}
	return b, nil
}
