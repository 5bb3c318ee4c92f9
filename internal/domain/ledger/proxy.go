package ledger

import (
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// stepQuota caps the number of resolver steps in one unit.
type stepQuota struct {
	limit int
	used  int
}

func (q *stepQuota) take() bool {
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// resolve lets standing mandates answer the current leader until no mandate
// can beat it. Every step raises the price and retires at least one mandate
// or a mandate-less leader, so 2*mandates+1 steps always suffice.
func (l *Ledger) resolve() {
	if l.Leader() == nil {
		return
	}
	quota := stepQuota{limit: 2*len(bid.LiveMandates(l.bids)) + 1}
	for {
		if !quota.take() {
			l.outcome.ResolverCapped = true
			return
		}
		if !l.step() {
			return
		}
	}
}

// step performs one exchange between the top challenger and the leader.
func (l *Ledger) step() bool {
	leader := l.Leader()
	if leader == nil {
		return false
	}
	minNext := l.NextMinBid()

	var challenger *bid.Mandate
	for _, m := range bid.LiveMandates(l.bids) {
		if m.BidderID == leader.BidderID || m.Ceiling.LessThan(minNext) {
			continue
		}
		challenger = m
		break
	}
	if challenger == nil {
		return false
	}

	defence := bid.MandateFor(l.bids, leader.BidderID)
	d := l.auction.CurrentBid
	if defence != nil && defence.Ceiling.GreaterThan(d) {
		d = defence.Ceiling
	}

	wins := challenger.Ceiling.GreaterThan(d) ||
		(defence != nil && defence.Ceiling.Equal(d) && challenger.Outranks(defence))
	if wins {
		l.mandateBid(challenger, decimal.Min(challenger.Ceiling, d.Add(l.increment(d))))
		return true
	}

	answer := challenger.Ceiling.Add(l.increment(challenger.Ceiling))
	if answer.LessThanOrEqual(d) {
		leaderID := leader.BidderID
		l.mandateBid(challenger, challenger.Ceiling)
		if m := bid.MandateFor(l.bids, leaderID); m != nil {
			l.mandateBid(m, answer)
		}
		return true
	}
	l.mandateBid(defence, d)
	return true
}

// mandateBid places amount on behalf of m. A registration row is filled in;
// a row that already bid is superseded by a new one with the same ceiling.
func (l *Ledger) mandateBid(m *bid.Mandate, amount decimal.Decimal) {
	carrier := m.Bid
	if !carrier.IsPlaced() {
		carrier.Amount = amount
		l.place(carrier, true)
		return
	}
	ceiling := m.Ceiling
	next := l.newBid(m.BidderID, amount, &ceiling)
	carrier.Status = bid.StatusOutbid
	l.touch(carrier)
	l.insert(next)
	l.place(next, true)
}

// CancelMandate switches off the bidder's proxy mandate. Bids already placed
// stand: a leading carrier keeps the lead at its amount as a plain bid, while
// a standing or never-used carrier drops out as outbid.
func (l *Ledger) CancelMandate(bidderID uuid.UUID) (*bid.Bid, error) {
	a := l.auction
	if a.IsBiddable() && a.IsExpired(l.now) {
		if err := l.Finalize(); err != nil {
			return nil, err
		}
		return nil, shared.ErrAuctionEnded
	}

	m := bid.MandateFor(l.bids, bidderID)
	if m == nil {
		return nil, shared.ErrNoActiveProxy
	}
	carrier := m.Bid
	if carrier.IsWinning() {
		carrier.IsProxy = false
	} else {
		carrier.Status = bid.StatusOutbid
	}
	l.touch(carrier)
	l.touchAuction()

	l.outcome.MandateCancelled = &MandateCancellation{
		BidderID: bidderID,
		Ceiling:  m.Ceiling,
		Bid:      carrier.Clone(),
	}
	return carrier, nil
}
