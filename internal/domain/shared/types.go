package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionEndResult represents the result of ending an auction
type AuctionEndResult struct {
	AuctionID  uuid.UUID        `json:"auction_id"`
	WinnerID   *uuid.UUID       `json:"winner_id,omitempty"`
	WinningBid *decimal.Decimal `json:"winning_bid,omitempty"`
	TotalBids  int              `json:"total_bids"`
	ReserveMet bool             `json:"reserve_met"`
	Status     string           `json:"status"`
}

// AuctionDelta describes how an auction moved after a committed unit of work.
type AuctionDelta struct {
	AuctionID      uuid.UUID       `json:"auction_id"`
	CurrentBid     decimal.Decimal `json:"current_bid"`
	BidCount       int             `json:"bid_count"`
	NextMinBid     decimal.Decimal `json:"next_min_bid"`
	Extended       bool            `json:"extended"`
	NewEndTime     time.Time       `json:"new_end_time"`
	ExtensionCount int             `json:"extension_count"`
	ReserveMet     bool            `json:"reserve_met"`
	WinnerID       *uuid.UUID      `json:"winner_id,omitempty"`
}

// SweepReport summarizes one lifecycle pass.
type SweepReport struct {
	Due       int `json:"due"`
	Started   int `json:"started"`
	Ended     int `json:"ended"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}
