package ledger

import (
	"sort"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Retract withdraws a bid inside the grace window. Retracting the leader
// hands the lead to the next highest remaining bid, or resets the price to
// the starting price when none remains.
func (l *Ledger) Retract(bidID, requestedBy uuid.UUID, reason string) (*bid.Bid, error) {
	b := l.find(bidID)
	if b == nil {
		return nil, shared.ErrBidNotFound
	}
	if b.BidderID != requestedBy {
		return nil, shared.ErrNotBidOwner
	}
	switch b.Status {
	case bid.StatusRetracted:
		return nil, shared.ErrAlreadyRetracted
	case bid.StatusWon:
		return nil, shared.ErrBidWon
	}

	a := l.auction
	switch {
	case a.Status == auction.StatusEnded || a.Status == auction.StatusSettled || a.Status == auction.StatusCancelled:
		return nil, shared.ErrAuctionEnded
	case a.IsBiddable() && a.IsExpired(l.now):
		if err := l.Finalize(); err != nil {
			return nil, err
		}
		return nil, shared.ErrAuctionEnded
	}

	since := b.CreatedAt
	if b.IsPlaced() {
		since = b.PlacedAt
	}
	if l.now.Sub(since) > l.rules.RetractionWindow {
		return nil, shared.ErrRetractionWindowClosed
	}

	wasLeading := b.IsWinning()
	wasPlaced := b.IsPlaced()
	b.Retract(reason, l.now)
	l.touch(b)
	if wasPlaced {
		a.BidCount--
	}

	r := &Retraction{Bid: b.Clone(), Reason: reason, WasLeading: wasLeading}
	if wasLeading {
		if next := l.runnerUp(); next != nil {
			next.Status = bid.StatusWinning
			l.touch(next)
			a.CurrentBid = next.Amount
			r.NewLeader = next.Clone()
		} else {
			a.CurrentBid = a.StartingPrice
		}
	}
	a.RefreshReserve()
	l.touchAuction()
	r.NewCurrentBid = a.CurrentBid
	l.outcome.Retraction = r
	return b, nil
}

// runnerUp returns the highest remaining placed bid, earliest first on ties.
func (l *Ledger) runnerUp() *bid.Bid {
	var candidates []*bid.Bid
	for _, b := range l.bids {
		if b.IsPlaced() && !b.IsRetracted() {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].Amount.Cmp(candidates[j].Amount); c != 0 {
			return c > 0
		}
		return candidates[i].PlacedAt.Before(candidates[j].PlacedAt)
	})
	return candidates[0]
}
