package db

import (
	"context"
	"database/sql"
	"fmt"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/ledger"

	"github.com/google/uuid"
)

// Store implements outbound.RecordStore. Writers never lock rows across a
// unit of work: Commit succeeds only if the auction row still carries the
// version the unit read.
type Store struct {
	conn *Connection
}

// NewStore creates a store on an open connection
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Snapshot reads an auction and its bids inside one read transaction.
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (*auction.Auction, []*bid.Bid, error) {
	var (
		a    *auction.Auction
		bids []*bid.Bid
	)
	err := s.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = s.getAuction(ctx, tx, id); err != nil {
			return err
		}
		bids, err = s.listBids(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return a, bids, nil
}

// Commit applies a changeset in one transaction guarded by the auction version.
func (s *Store) Commit(ctx context.Context, changes *ledger.Changeset) error {
	return s.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.updateAuction(ctx, tx, changes.Auction, changes.ExpectedVersion); err != nil {
			return err
		}
		for _, b := range changes.InsertBids {
			if err := s.insertBid(ctx, tx, b); err != nil {
				return fmt.Errorf("commit auction %s: %w", changes.Auction.ID, err)
			}
		}
		for _, b := range changes.UpdateBids {
			if err := s.updateBid(ctx, tx, b); err != nil {
				return fmt.Errorf("commit auction %s: %w", changes.Auction.ID, err)
			}
		}
		return nil
	})
}
