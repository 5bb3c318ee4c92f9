package bid

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of a bid
type Status string

const (
	StatusActive    Status = "active"
	StatusOutbid    Status = "outbid"
	StatusWinning   Status = "winning"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusRetracted Status = "retracted"
)

// Bid represents a bid on an auction. A proxy row with a zero amount and no
// placed_at is a mandate registration that has not bid yet.
type Bid struct {
	ID            uuid.UUID        `json:"id"`
	AuctionID     uuid.UUID        `json:"auction_id"`
	BidderID      uuid.UUID        `json:"bidder_id"`
	Amount        decimal.Decimal  `json:"amount"`
	IsProxy       bool             `json:"is_proxy"`
	ProxyCeiling  *decimal.Decimal `json:"proxy_ceiling,omitempty"`
	Status        Status           `json:"status"`
	PlacedAt      time.Time        `json:"placed_at"`
	RetractReason string           `json:"retract_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IsPlaced returns true once the bid has been admitted with an amount.
func (b *Bid) IsPlaced() bool {
	return !b.PlacedAt.IsZero()
}

// IsRetracted returns true if the bidder withdrew the bid
func (b *Bid) IsRetracted() bool {
	return b.Status == StatusRetracted
}

// IsWinning returns true if the bid currently leads the auction
func (b *Bid) IsWinning() bool {
	return b.Status == StatusWinning
}

// IsLive returns true while the bid can still take part in bidding.
func (b *Bid) IsLive() bool {
	return b.Status == StatusActive || b.Status == StatusWinning
}

// Ceiling returns the proxy ceiling, or zero for manual bids.
func (b *Bid) Ceiling() decimal.Decimal {
	if b.ProxyCeiling == nil {
		return decimal.Zero
	}
	return *b.ProxyCeiling
}

// Retract withdraws the bid.
func (b *Bid) Retract(reason string, now time.Time) {
	b.Status = StatusRetracted
	b.RetractReason = reason
	b.UpdatedAt = now
}

// Clone returns a deep copy safe to mutate.
func (b *Bid) Clone() *Bid {
	c := *b
	if b.ProxyCeiling != nil {
		v := *b.ProxyCeiling
		c.ProxyCeiling = &v
	}
	return &c
}

// CloneAll copies a slice of bids.
func CloneAll(bids []*Bid) []*Bid {
	out := make([]*Bid, len(bids))
	for i, b := range bids {
		out[i] = b.Clone()
	}
	return out
}

// SortHighestFirst orders bids by amount descending, earlier rows first on ties.
func SortHighestFirst(bids []*Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}
