// Package ledger applies bidding rules to one auction snapshot. A Ledger is a
// single atomic unit: it mutates private copies and hands back a Changeset to
// commit and an Outcome describing what happened.
package ledger

import (
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rules holds the tunable bidding rules.
type Rules struct {
	Increments       auction.IncrementTable
	Extension        auction.ExtensionPolicy
	RetractionWindow time.Duration
}

// DefaultRules returns the standard increment table, a 5 minute anti-sniping
// window and a 5 minute retraction grace period.
func DefaultRules() Rules {
	return Rules{
		Increments:       auction.DefaultIncrementTable(),
		Extension:        auction.DefaultExtensionPolicy(),
		RetractionWindow: 5 * time.Minute,
	}
}

// Changeset is everything a unit writes. The store applies it only if the
// auction row still carries ExpectedVersion.
type Changeset struct {
	Auction         *auction.Auction
	ExpectedVersion int64
	InsertBids      []*bid.Bid
	UpdateBids      []*bid.Bid
}

// Ledger evaluates one unit of work against a snapshot.
type Ledger struct {
	rules Rules
	now   time.Time

	auction         *auction.Auction
	bids            []*bid.Bid
	expectedVersion int64
	originalEnd     time.Time

	inserted map[uuid.UUID]bool
	updated  map[uuid.UUID]bool
	order    []uuid.UUID
	dirty    bool

	extensionChecked bool
	lostLead         map[uuid.UUID]decimal.Decimal
	outcome          Outcome
}

// New copies the snapshot so the caller's values are never touched.
func New(rules Rules, a *auction.Auction, bids []*bid.Bid, now time.Time) *Ledger {
	return &Ledger{
		rules:           rules,
		now:             now,
		auction:         a.Clone(),
		bids:            bid.CloneAll(bids),
		expectedVersion: a.Version,
		originalEnd:     a.EndTime,
		inserted:        make(map[uuid.UUID]bool),
		updated:         make(map[uuid.UUID]bool),
		lostLead:        make(map[uuid.UUID]decimal.Decimal),
	}
}

// Auction returns the working copy of the auction.
func (l *Ledger) Auction() *auction.Auction {
	return l.auction
}

// Now is the instant the unit is evaluated at.
func (l *Ledger) Now() time.Time {
	return l.now
}

// Bids returns the working copies of the bids.
func (l *Ledger) Bids() []*bid.Bid {
	return l.bids
}

// Dirty reports whether the unit changed anything that must be committed.
func (l *Ledger) Dirty() bool {
	return l.dirty
}

// Leader returns the winning bid, or nil.
func (l *Ledger) Leader() *bid.Bid {
	for _, b := range l.bids {
		if b.IsWinning() {
			return b
		}
	}
	return nil
}

// NextMinBid is the lowest amount the next bid may have.
func (l *Ledger) NextMinBid() decimal.Decimal {
	return l.auction.NextMinBid(l.rules.Increments)
}

func (l *Ledger) increment(price decimal.Decimal) decimal.Decimal {
	return l.auction.IncrementFor(price, l.rules.Increments)
}

func (l *Ledger) find(id uuid.UUID) *bid.Bid {
	for _, b := range l.bids {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (l *Ledger) touchAuction() {
	l.auction.UpdatedAt = l.now
	l.dirty = true
}

func (l *Ledger) touch(b *bid.Bid) {
	b.UpdatedAt = l.now
	if !l.inserted[b.ID] && !l.updated[b.ID] {
		l.updated[b.ID] = true
		l.order = append(l.order, b.ID)
	}
	l.dirty = true
}

func (l *Ledger) insert(b *bid.Bid) {
	l.bids = append(l.bids, b)
	l.inserted[b.ID] = true
	l.order = append(l.order, b.ID)
	l.dirty = true
}

func (l *Ledger) newBid(bidderID uuid.UUID, amount decimal.Decimal, ceiling *decimal.Decimal) *bid.Bid {
	b := &bid.Bid{
		ID:        uuid.New(),
		AuctionID: l.auction.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    bid.StatusActive,
		CreatedAt: l.now,
		UpdatedAt: l.now,
	}
	if ceiling != nil {
		c := *ceiling
		b.IsProxy = true
		b.ProxyCeiling = &c
	}
	return b
}

// open brings the auction up to date with the clock and reports whether it
// accepts bids. An auction found past its end is finalized inside the unit.
func (l *Ledger) open() error {
	a := l.auction
	if a.ShouldStart(l.now) {
		if err := l.Activate(); err != nil {
			return err
		}
	}
	switch {
	case a.Status == auction.StatusEnded || a.Status == auction.StatusSettled:
		return shared.ErrAuctionEnded
	case !a.IsBiddable():
		return shared.ErrNotActive
	case a.IsExpired(l.now):
		if err := l.Finalize(); err != nil {
			return err
		}
		return shared.ErrAuctionEnded
	}
	return nil
}

// Activate moves a scheduled auction to active.
func (l *Ledger) Activate() error {
	if err := l.auction.Transition(auction.StatusActive, l.now); err != nil {
		return err
	}
	l.touchAuction()
	l.outcome.Started = true
	return nil
}

// place makes b the winning bid and updates the running auction state.
func (l *Ledger) place(b *bid.Bid, synthetic bool) {
	a := l.auction
	prev := l.Leader()

	wasPlaced := b.IsPlaced()
	b.Status = bid.StatusWinning
	b.PlacedAt = l.now
	l.touch(b)
	a.CurrentBid = b.Amount
	if !wasPlaced {
		a.BidCount++
	}
	a.RefreshReserve()
	l.touchAuction()

	minNext := l.NextMinBid()
	if prev != nil && prev != b {
		if prev.IsProxy && prev.Ceiling().GreaterThanOrEqual(minNext) {
			prev.Status = bid.StatusActive
		} else {
			prev.Status = bid.StatusOutbid
		}
		l.touch(prev)
		if prev.BidderID != b.BidderID {
			if held, ok := l.lostLead[prev.BidderID]; !ok || prev.Amount.GreaterThan(held) {
				l.lostLead[prev.BidderID] = prev.Amount
			}
		}
	}
	l.exhaust(minNext)
	l.maybeExtend()

	l.outcome.Placements = append(l.outcome.Placements, Placement{
		Bid:        b.Clone(),
		CurrentBid: a.CurrentBid,
		BidCount:   a.BidCount,
		NextMinBid: minNext,
		Synthetic:  synthetic,
	})
}

// exhaust retires mandate rows that can no longer reach minNext.
func (l *Ledger) exhaust(minNext decimal.Decimal) {
	for _, b := range l.bids {
		if b.IsProxy && b.Status == bid.StatusActive && b.Ceiling().LessThan(minNext) {
			b.Status = bid.StatusOutbid
			l.touch(b)
		}
	}
}

// maybeExtend applies anti-sniping once per unit, measured against the end
// time the unit started with.
func (l *Ledger) maybeExtend() {
	if l.extensionChecked {
		return
	}
	l.extensionChecked = true
	a := l.auction
	ok, newEnd := auction.ShouldExtend(l.originalEnd, l.now, a.ExtensionCount, a.MaxExtensions, l.rules.Extension)
	if !ok {
		return
	}
	oldEnd := a.EndTime
	if err := a.ApplyExtension(newEnd, l.now); err != nil {
		return
	}
	l.touchAuction()
	l.outcome.Extension = &Extension{
		PreviousEndTime: oldEnd,
		NewEndTime:      a.EndTime,
		ExtensionCount:  a.ExtensionCount,
		Reason:          "bid placed near end of auction",
	}
}

// Changeset returns the writes of the unit, or nil when nothing changed.
func (l *Ledger) Changeset() *Changeset {
	if !l.dirty {
		return nil
	}
	a := l.auction.Clone()
	a.Version = l.expectedVersion + 1
	cs := &Changeset{Auction: a, ExpectedVersion: l.expectedVersion}
	for _, id := range l.order {
		b := l.find(id).Clone()
		if l.inserted[id] {
			cs.InsertBids = append(cs.InsertBids, b)
		} else {
			cs.UpdateBids = append(cs.UpdateBids, b)
		}
	}
	return cs
}

// Delta summarizes the auction state after the unit.
func (l *Ledger) Delta() shared.AuctionDelta {
	a := l.auction
	d := shared.AuctionDelta{
		AuctionID:      a.ID,
		CurrentBid:     a.CurrentBid,
		BidCount:       a.BidCount,
		NextMinBid:     l.NextMinBid(),
		Extended:       l.outcome.Extension != nil,
		NewEndTime:     a.EndTime,
		ExtensionCount: a.ExtensionCount,
		ReserveMet:     a.ReserveMet,
	}
	if leader := l.Leader(); leader != nil {
		id := leader.BidderID
		d.WinnerID = &id
	} else if a.WinnerID != nil {
		id := *a.WinnerID
		d.WinnerID = &id
	}
	return d
}

// Outcome describes what the unit did.
func (l *Ledger) Outcome() Outcome {
	o := l.outcome
	o.Outbid = nil
	var leaderID uuid.UUID
	if leader := l.Leader(); leader != nil {
		leaderID = leader.BidderID
	}
	for userID, amount := range l.lostLead {
		if userID == leaderID {
			continue
		}
		o.Outbid = append(o.Outbid, OutbidNotice{UserID: userID, PreviousBid: amount})
	}
	sortNotices(o.Outbid)
	return o
}
