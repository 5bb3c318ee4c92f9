// Package memory provides an in-process record store with the same
// compare-and-swap semantics as the SQL store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Store is a concurrency-safe in-memory implementation of outbound.RecordStore
type Store struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*auction.Auction
	bids     map[uuid.UUID][]*bid.Bid // key: auctionID -> value: bids in insertion order
	bidIndex map[uuid.UUID]uuid.UUID  // key: bidID -> value: auctionID

	// fault, when set, is consulted before every operation. Tests use it to
	// simulate store outages and lost races.
	fault func(op string) error
}

// NewStore creates a new in-memory store instance
func NewStore() *Store {
	return &Store{
		auctions: make(map[uuid.UUID]*auction.Auction),
		bids:     make(map[uuid.UUID][]*bid.Bid),
		bidIndex: make(map[uuid.UUID]uuid.UUID),
	}
}

// InjectFault installs a hook that can fail operations by name
// ("snapshot", "commit", "get_auction", ...). Intended for tests only.
func (s *Store) InjectFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.fault != nil {
		return s.fault(op)
	}
	return nil
}

// CreateAuction inserts a new auction
func (s *Store) CreateAuction(ctx context.Context, a *auction.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create_auction"); err != nil {
		return err
	}
	if _, exists := s.auctions[a.ID]; exists {
		return fmt.Errorf("create auction %s: already exists", a.ID)
	}
	s.auctions[a.ID] = a.Clone()
	return nil
}

// GetAuction retrieves an auction by ID
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "get_auction"); err != nil {
		return nil, err
	}
	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", id, shared.ErrAuctionNotFound)
	}
	return a.Clone(), nil
}

// ListAuctions returns auctions newest first, optionally filtered by status
func (s *Store) ListAuctions(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list_auctions"); err != nil {
		return nil, err
	}

	var all []*auction.Auction
	for _, a := range s.auctions {
		if status == nil || a.Status == *status {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []*auction.Auction{}, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	out := make([]*auction.Auction, 0, end-offset)
	for _, a := range all[offset:end] {
		out = append(out, a.Clone())
	}
	return out, nil
}

// Snapshot returns copies of an auction and its bids taken under one lock
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (*auction.Auction, []*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "snapshot"); err != nil {
		return nil, nil, err
	}
	a, ok := s.auctions[id]
	if !ok {
		return nil, nil, fmt.Errorf("snapshot auction %s: %w", id, shared.ErrAuctionNotFound)
	}
	return a.Clone(), bid.CloneAll(s.bids[id]), nil
}

// GetBid retrieves a bid by ID
func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "get_bid"); err != nil {
		return nil, err
	}
	auctionID, ok := s.bidIndex[id]
	if !ok {
		return nil, fmt.Errorf("get bid %s: %w", id, shared.ErrBidNotFound)
	}
	for _, b := range s.bids[auctionID] {
		if b.ID == id {
			return b.Clone(), nil
		}
	}
	return nil, fmt.Errorf("get bid %s: %w", id, shared.ErrBidNotFound)
}

// ListBids returns the bids of an auction, highest amount first
func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list_bids"); err != nil {
		return nil, err
	}
	if _, ok := s.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, shared.ErrAuctionNotFound)
	}
	out := bid.CloneAll(s.bids[auctionID])
	bid.SortHighestFirst(out)
	return out, nil
}

// ListDue returns auctions whose clock requires a lifecycle step
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list_due"); err != nil {
		return nil, err
	}
	var due []*auction.Auction
	for _, a := range s.auctions {
		if (a.IsBiddable() && a.IsExpired(now)) || a.ShouldStart(now) {
			due = append(due, a.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Commit applies a changeset if the auction still has the expected version
func (s *Store) Commit(ctx context.Context, changes *ledger.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "commit"); err != nil {
		return err
	}

	id := changes.Auction.ID
	current, ok := s.auctions[id]
	if !ok {
		return fmt.Errorf("commit auction %s: %w", id, shared.ErrAuctionNotFound)
	}
	if current.Version != changes.ExpectedVersion {
		return fmt.Errorf("commit auction %s at version %d (have %d): %w",
			id, changes.ExpectedVersion, current.Version, shared.ErrConflict)
	}

	s.auctions[id] = changes.Auction.Clone()
	for _, b := range changes.InsertBids {
		s.bids[id] = append(s.bids[id], b.Clone())
		s.bidIndex[b.ID] = id
	}
	for _, updated := range changes.UpdateBids {
		for i, b := range s.bids[id] {
			if b.ID == updated.ID {
				s.bids[id][i] = updated.Clone()
				break
			}
		}
	}
	return nil
}
