package inbound

import (
	"context"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=auction_service.go -destination=mocks/mock_services.go -package=mocks

// AuctionService defines the interface for auction operations
type AuctionService interface {
	// CreateAuction publishes the auction terms of a listing
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// ExtendAuction pushes the end time on the seller's request
	ExtendAuction(ctx context.Context, req ExtendAuctionRequest) (*shared.AuctionDelta, error)

	// EndAuction ends an auction whose clock has run out
	EndAuction(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionEndResult, error)

	// SettleAuction marks an ended auction as handed over to payment capture.
	// Only the system may settle.
	SettleAuction(ctx context.Context, req SettleAuctionRequest) (*auction.Auction, error)

	// CancelAuction withdraws an auction that has not ended
	CancelAuction(ctx context.Context, req CancelAuctionRequest) (*auction.Auction, error)

	// Sweep performs one lifecycle pass over every auction whose clock is due
	Sweep(ctx context.Context) (*shared.SweepReport, error)
}

// BidService defines the interface for bid operations
type BidService interface {
	// PlaceBid admits a bid, optionally with a proxy ceiling
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*Admission, error)

	// SetupProxyBid registers a proxy mandate, optionally bidding straight away
	SetupProxyBid(ctx context.Context, req SetupProxyBidRequest) (*Admission, error)

	// RetractBid withdraws a bid inside the grace window
	RetractBid(ctx context.Context, req RetractBidRequest) (*Retraction, error)

	// CancelProxyBid switches off the caller's proxy mandate, keeping placed bids
	CancelProxyBid(ctx context.Context, req CancelProxyBidRequest) (*bid.Bid, error)

	// GetBids retrieves bids for an auction
	GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	ListingID       uuid.UUID        `json:"listing_id"`
	SellerID        uuid.UUID        `json:"seller_id"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment,omitempty"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	MaxExtensions   *int             `json:"max_extensions,omitempty"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status   *auction.Status `json:"status,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID    uuid.UUID        `json:"auction_id"`
	BidderID     uuid.UUID        `json:"bidder_id"`
	Amount       decimal.Decimal  `json:"amount"`
	ProxyCeiling *decimal.Decimal `json:"proxy_ceiling,omitempty"`
}

// request to register a proxy mandate
type SetupProxyBidRequest struct {
	AuctionID  uuid.UUID        `json:"auction_id"`
	BidderID   uuid.UUID        `json:"bidder_id"`
	Ceiling    decimal.Decimal  `json:"ceiling"`
	InitialBid *decimal.Decimal `json:"initial_bid,omitempty"`
}

// request to retract a bid
type RetractBidRequest struct {
	BidID       uuid.UUID `json:"bid_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	Reason      string    `json:"reason"`
}

// request to extend an auction manually
type ExtendAuctionRequest struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	Minutes     int       `json:"minutes"`
	Reason      string    `json:"reason"`
}

// request to switch off a proxy mandate
type CancelProxyBidRequest struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
}

// request to settle an auction. RequestedBy is uuid.Nil for the system.
type SettleAuctionRequest struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

// request to cancel an auction
type CancelAuctionRequest struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	Reason      string    `json:"reason"`
}

// Admission is the committed result of a bid or mandate request.
type Admission struct {
	// Bid is the row the request created.
	Bid *bid.Bid `json:"bid"`
	// Leader is the winning bid after proxy resolution.
	Leader *bid.Bid `json:"leader,omitempty"`
	// Placed lists every bid admitted in the unit, in order.
	Placed []*bid.Bid          `json:"placed"`
	Delta  shared.AuctionDelta `json:"delta"`
}

// Retraction is the committed result of a retraction.
type Retraction struct {
	Bid    *bid.Bid            `json:"bid"`
	Leader *bid.Bid            `json:"leader,omitempty"`
	Delta  shared.AuctionDelta `json:"delta"`
}
