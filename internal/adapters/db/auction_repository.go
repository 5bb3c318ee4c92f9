package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const auctionColumns = `id, listing_id, seller_id, starting_price, current_bid, bid_count, reserve_price, reserve_met,
	min_bid_increment, start_time, end_time, extension_count, max_extensions, status, winner_id, version,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row scanner) (*auction.Auction, error) {
	var (
		a         auction.Auction
		reserve   decimal.NullDecimal
		increment decimal.NullDecimal
		winner    uuid.NullUUID
		status    string
	)
	err := row.Scan(
		&a.ID,
		&a.ListingID,
		&a.SellerID,
		&a.StartingPrice,
		&a.CurrentBid,
		&a.BidCount,
		&reserve,
		&a.ReserveMet,
		&increment,
		&a.StartTime,
		&a.EndTime,
		&a.ExtensionCount,
		&a.MaxExtensions,
		&status,
		&winner,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = auction.Status(status)
	if reserve.Valid {
		a.ReservePrice = &reserve.Decimal
	}
	if increment.Valid {
		a.MinBidIncrement = &increment.Decimal
	}
	if winner.Valid {
		a.WinnerID = &winner.UUID
	}
	return &a, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

// CreateAuction creates a new auction
func (s *Store) CreateAuction(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.conn.GetDB().ExecContext(ctx, s.conn.rebind(query),
		a.ID,
		a.ListingID,
		a.SellerID,
		a.StartingPrice,
		a.CurrentBid,
		a.BidCount,
		nullDecimal(a.ReservePrice),
		a.ReserveMet,
		nullDecimal(a.MinBidIncrement),
		utc(a.StartTime),
		utc(a.EndTime),
		a.ExtensionCount,
		a.MaxExtensions,
		string(a.Status),
		nullUUID(a.WinnerID),
		a.Version,
		utc(a.CreatedAt),
		utc(a.UpdatedAt),
	)
	if err != nil {
		return storeError("create auction", err)
	}
	return nil
}

// GetAuction retrieves an auction by ID
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return s.getAuction(ctx, s.conn.GetDB(), id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Store) getAuction(ctx context.Context, q queryer, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(q.QueryRowContext(ctx, s.conn.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get auction %s: %w", id, shared.ErrAuctionNotFound)
		}
		return nil, storeError("get auction", err)
	}
	return a, nil
}

// ListAuctions retrieves a page of auctions, newest first
func (s *Store) ListAuctions(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	var args []interface{}
	where := ""
	next := 1
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*status))
		next++
	}
	args = append(args, pageSize, (page-1)*pageSize)

	query := fmt.Sprintf(`SELECT %s FROM auctions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		auctionColumns, where, next, next+1)

	return s.queryAuctions(ctx, "list auctions", query, args...)
}

// ListDue returns auctions that are past their end time while still taking
// bids, or past their start time while still scheduled, earliest end first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE (status IN ('active', 'extended') AND end_time <= $1)
		   OR (status = 'scheduled' AND start_time <= $2)
		ORDER BY end_time ASC
		LIMIT $3
	`
	now = utc(now)
	return s.queryAuctions(ctx, "list due auctions", query, now, now, limit)
}

func (s *Store) queryAuctions(ctx context.Context, op, query string, args ...interface{}) ([]*auction.Auction, error) {
	rows, err := s.conn.GetDB().QueryContext(ctx, s.conn.rebind(query), args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	defer rows.Close()

	auctions := []*auction.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return auctions, nil
}

// updateAuction writes the new state of an auction if its stored version
// still equals expected.
func (s *Store) updateAuction(ctx context.Context, tx *sql.Tx, a *auction.Auction, expected int64) error {
	query := `
		UPDATE auctions
		SET current_bid = $1, bid_count = $2, reserve_met = $3, end_time = $4, extension_count = $5,
		    status = $6, winner_id = $7, version = $8, updated_at = $9
		WHERE id = $10 AND version = $11
	`

	result, err := tx.ExecContext(ctx, s.conn.rebind(query),
		a.CurrentBid,
		a.BidCount,
		a.ReserveMet,
		utc(a.EndTime),
		a.ExtensionCount,
		string(a.Status),
		nullUUID(a.WinnerID),
		a.Version,
		utc(a.UpdatedAt),
		a.ID,
		expected,
	)
	if err != nil {
		return storeError("update auction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	if _, err := s.getAuction(ctx, tx, a.ID); err != nil {
		return err
	}
	return fmt.Errorf("commit auction %s at version %d: %w", a.ID, expected, shared.ErrConflict)
}
