package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the current status of an auction
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusExtended  Status = "extended"
	StatusEnded     Status = "ended"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Auction is the authoritative price and clock state of one listing's auction.
type Auction struct {
	ID              uuid.UUID        `json:"id"`
	ListingID       uuid.UUID        `json:"listing_id"`
	SellerID        uuid.UUID        `json:"seller_id"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	CurrentBid      decimal.Decimal  `json:"current_bid"`
	BidCount        int              `json:"bid_count"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	ReserveMet      bool             `json:"reserve_met"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment,omitempty"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	ExtensionCount  int              `json:"extension_count"`
	MaxExtensions   int              `json:"max_extensions"`
	Status          Status           `json:"status"`
	WinnerID        *uuid.UUID       `json:"winner_id,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// IsBiddable reports whether the status accepts bids. The clock is checked separately.
func (a *Auction) IsBiddable() bool {
	return a.Status == StatusActive || a.Status == StatusExtended
}

// IsExpired returns true once the end time has been reached.
func (a *Auction) IsExpired(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// IsTerminal returns true for statuses no bid can ever reach again.
func (a *Auction) IsTerminal() bool {
	switch a.Status {
	case StatusEnded, StatusSettled, StatusCancelled:
		return true
	}
	return false
}

// ShouldStart reports whether a scheduled auction has reached its start time.
func (a *Auction) ShouldStart(now time.Time) bool {
	return a.Status == StatusScheduled && !now.Before(a.StartTime)
}

// IncrementFor returns the minimum raise over the given price.
func (a *Auction) IncrementFor(price decimal.Decimal, table IncrementTable) decimal.Decimal {
	if a.MinBidIncrement != nil && a.MinBidIncrement.IsPositive() {
		return *a.MinBidIncrement
	}
	return table.For(price)
}

// NextMinBid returns the lowest amount the next bid may have.
func (a *Auction) NextMinBid(table IncrementTable) decimal.Decimal {
	return a.CurrentBid.Add(a.IncrementFor(a.CurrentBid, table))
}

// RefreshReserve recomputes ReserveMet from the current price.
func (a *Auction) RefreshReserve() {
	a.ReserveMet = a.ReservePrice == nil || (a.BidCount > 0 && a.CurrentBid.GreaterThanOrEqual(*a.ReservePrice))
}

// TimeRemaining returns the time left until the end, never negative.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if left := a.EndTime.Sub(now); left > 0 {
		return left
	}
	return 0
}

// Clone returns a deep copy safe to mutate.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.ReservePrice != nil {
		v := *a.ReservePrice
		c.ReservePrice = &v
	}
	if a.MinBidIncrement != nil {
		v := *a.MinBidIncrement
		c.MinBidIncrement = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		c.WinnerID = &v
	}
	return &c
}
