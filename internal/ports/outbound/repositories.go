package outbound

import (
	"context"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/ledger"

	"github.com/google/uuid"
)

// RecordStore is the authoritative store of auctions and bids.
type RecordStore interface {
	// CreateAuction inserts a new auction at version 1
	CreateAuction(ctx context.Context, auction *auction.Auction) error

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a page of auctions, optionally filtered by status
	ListAuctions(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error)

	// Snapshot reads an auction together with all of its bids in one consistent read
	Snapshot(ctx context.Context, id uuid.UUID) (*auction.Auction, []*bid.Bid, error)

	// GetBid retrieves a bid by ID
	GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error)

	// ListBids retrieves the bids of an auction, highest amount first
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// ListDue returns auctions whose clock requires a lifecycle step:
	// active/extended past their end time, and scheduled past their start time.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error)

	// Commit applies a changeset atomically. It returns shared.ErrConflict when the
	// auction no longer carries the expected version.
	Commit(ctx context.Context, changes *ledger.Changeset) error
}
