package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const bidColumns = `id, auction_id, bidder_id, amount, is_proxy, proxy_ceiling, status, placed_at, retract_reason,
	created_at, updated_at`

func scanBid(row scanner) (*bid.Bid, error) {
	var (
		b       bid.Bid
		ceiling decimal.NullDecimal
		placed  sql.NullTime
		status  string
	)
	err := row.Scan(
		&b.ID,
		&b.AuctionID,
		&b.BidderID,
		&b.Amount,
		&b.IsProxy,
		&ceiling,
		&status,
		&placed,
		&b.RetractReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = bid.Status(status)
	if ceiling.Valid {
		b.ProxyCeiling = &ceiling.Decimal
	}
	if placed.Valid {
		b.PlacedAt = placed.Time
	}
	return &b, nil
}

func placedAt(b *bid.Bid) sql.NullTime {
	if !b.IsPlaced() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(b.PlacedAt), Valid: true}
}

// GetBid retrieves a bid by ID
func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`

	b, err := scanBid(s.conn.GetDB().QueryRowContext(ctx, s.conn.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get bid %s: %w", id, shared.ErrBidNotFound)
		}
		return nil, storeError("get bid", err)
	}
	return b, nil
}

// ListBids retrieves all bids for an auction, highest amount first
func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := s.listBids(ctx, s.conn.GetDB(), auctionID)
	if err != nil {
		return nil, err
	}
	bid.SortHighestFirst(bids)
	return bids, nil
}

// listBids returns the bids of an auction in insertion order. Amounts are
// ordered in Go since SQLite stores them as text.
func (s *Store) listBids(ctx context.Context, q queryer, auctionID uuid.UUID) ([]*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ORDER BY created_at ASC`

	rows, err := q.QueryContext(ctx, s.conn.rebind(query), auctionID)
	if err != nil {
		return nil, storeError("get bids", err)
	}
	defer rows.Close()

	bids := []*bid.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return bids, nil
}

func (s *Store) insertBid(ctx context.Context, tx *sql.Tx, b *bid.Bid) error {
	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES (` + placeholders(1, 11) + `)
	`

	_, err := tx.ExecContext(ctx, s.conn.rebind(query),
		b.ID,
		b.AuctionID,
		b.BidderID,
		b.Amount,
		b.IsProxy,
		nullDecimal(b.ProxyCeiling),
		string(b.Status),
		placedAt(b),
		b.RetractReason,
		utc(b.CreatedAt),
		utc(b.UpdatedAt),
	)
	if err != nil {
		return storeError("create bid", err)
	}
	return nil
}

func (s *Store) updateBid(ctx context.Context, tx *sql.Tx, b *bid.Bid) error {
	query := `
		UPDATE bids
		SET amount = $1, is_proxy = $2, proxy_ceiling = $3, status = $4, placed_at = $5, retract_reason = $6, updated_at = $7
		WHERE id = $8 AND auction_id = $9
	`

	result, err := tx.ExecContext(ctx, s.conn.rebind(query),
		b.Amount,
		b.IsProxy,
		nullDecimal(b.ProxyCeiling),
		string(b.Status),
		placedAt(b),
		b.RetractReason,
		utc(b.UpdatedAt),
		b.ID,
		b.AuctionID,
	)
	if err != nil {
		return storeError("update bid", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update bid %s: %w", b.ID, shared.ErrBidNotFound)
	}
	return nil
}
