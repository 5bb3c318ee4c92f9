package ledger

import (
	"fmt"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Finalize ends the auction. The leader wins only if the reserve is met;
// every other remaining bid is lost.
func (l *Ledger) Finalize() error {
	a := l.auction
	if err := a.Transition(auction.StatusEnded, l.now); err != nil {
		return err
	}
	leader := l.Leader()
	a.RefreshReserve()
	a.WinnerID = nil

	result := &shared.AuctionEndResult{
		AuctionID:  a.ID,
		TotalBids:  a.BidCount,
		ReserveMet: a.ReserveMet,
		Status:     string(auction.StatusEnded),
	}
	for _, b := range l.bids {
		if b.IsRetracted() {
			continue
		}
		if b == leader && a.ReserveMet {
			b.Status = bid.StatusWon
			winner := b.BidderID
			amount := b.Amount
			a.WinnerID = &winner
			result.WinnerID = &winner
			result.WinningBid = &amount
		} else {
			b.Status = bid.StatusLost
		}
		l.touch(b)
	}
	l.touchAuction()
	l.outcome.Ended = result
	return nil
}

// Cancel withdraws an auction that has not ended. uuid.Nil acts as the system.
func (l *Ledger) Cancel(requestedBy uuid.UUID, reason string) error {
	a := l.auction
	if requestedBy != uuid.Nil && requestedBy != a.SellerID {
		return shared.ErrNotAuctionOwner
	}
	if err := a.Transition(auction.StatusCancelled, l.now); err != nil {
		return err
	}
	for _, b := range l.bids {
		if b.IsRetracted() {
			continue
		}
		b.Status = bid.StatusLost
		l.touch(b)
	}
	l.touchAuction()
	l.outcome.Cancelled = &Cancellation{RequestedBy: requestedBy, Reason: reason}
	return nil
}

// Settle marks an ended auction as handed over to payment capture. Only the
// system (uuid.Nil) may settle.
func (l *Ledger) Settle(requestedBy uuid.UUID) error {
	if requestedBy != uuid.Nil {
		return fmt.Errorf("%w: settlement is reserved to the system", shared.ErrNotAuctionOwner)
	}
	if err := l.auction.Transition(auction.StatusSettled, l.now); err != nil {
		return err
	}
	l.touchAuction()
	l.outcome.Settled = true
	return nil
}

// Extend pushes the end time on the seller's request.
func (l *Ledger) Extend(requestedBy uuid.UUID, minutes int, reason string) error {
	a := l.auction
	if requestedBy != a.SellerID {
		return shared.ErrNotAuctionOwner
	}
	if minutes < 1 || minutes > 60 {
		return fmt.Errorf("%w: got %d", shared.ErrInvalidExtension, minutes)
	}
	if err := l.open(); err != nil {
		return err
	}
	if a.ExtensionCount >= a.MaxExtensions {
		return shared.ErrMaxExtensionsReached
	}
	oldEnd := a.EndTime
	if err := a.ApplyExtension(oldEnd.Add(time.Duration(minutes)*time.Minute), l.now); err != nil {
		return err
	}
	l.touchAuction()
	l.outcome.Extension = &Extension{
		PreviousEndTime: oldEnd,
		NewEndTime:      a.EndTime,
		ExtensionCount:  a.ExtensionCount,
		Manual:          true,
		Reason:          reason,
	}
	return nil
}
