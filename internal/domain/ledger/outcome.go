package ledger

import (
	"sort"
	"time"

	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Placement is one admitted bid with the auction state right after it.
type Placement struct {
	Bid        *bid.Bid
	CurrentBid decimal.Decimal
	BidCount   int
	NextMinBid decimal.Decimal
	// Synthetic marks bids placed by a proxy mandate on the owner's behalf.
	Synthetic bool
}

// Extension records a move of the auction clock.
type Extension struct {
	PreviousEndTime time.Time
	NewEndTime      time.Time
	ExtensionCount  int
	Manual          bool
	Reason          string
}

// OutbidNotice is owed to a bidder who lost the lead during the unit.
type OutbidNotice struct {
	UserID      uuid.UUID
	PreviousBid decimal.Decimal
}

// Retraction describes a withdrawn bid and its effect on the price.
type Retraction struct {
	Bid           *bid.Bid
	Reason        string
	WasLeading    bool
	NewLeader     *bid.Bid
	NewCurrentBid decimal.Decimal
}

// Outcome is the observable result of a unit, in the order things happened.
type Outcome struct {
	Started    bool
	Placements []Placement
	Extension  *Extension
	Outbid     []OutbidNotice
	Retraction *Retraction
	Ended      *shared.AuctionEndResult
	Cancelled  *Cancellation
	Settled    bool
	// MandateCancelled is set when a bidder switched off their proxy.
	MandateCancelled *MandateCancellation
	// ResolverCapped is set when proxy resolution stopped on its step quota.
	ResolverCapped bool
}

// Cancellation records who cancelled the auction and why.
type Cancellation struct {
	RequestedBy uuid.UUID
	Reason      string
}

// MandateCancellation records a proxy mandate switched off by its owner.
type MandateCancellation struct {
	BidderID uuid.UUID
	Ceiling  decimal.Decimal
	// Bid is the row that carried the mandate, as left after cancelling.
	Bid *bid.Bid
}

// Final returns the last placement, or nil.
func (o Outcome) Final() *Placement {
	if len(o.Placements) == 0 {
		return nil
	}
	return &o.Placements[len(o.Placements)-1]
}

func sortNotices(n []OutbidNotice) {
	sort.Slice(n, func(i, j int) bool {
		return n[i].UserID.String() < n[j].UserID.String()
	})
}
