package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds how often a unit is re-run after a conflict.
const DefaultMaxAttempts = 3

// unitRunner executes ledger operations as optimistic units of work:
// snapshot, evaluate, compare-and-swap commit, retry on conflict.
type unitRunner struct {
	store       outbound.RecordStore
	rules       ledger.Rules
	maxAttempts int
	now         func() time.Time
	logger      zerolog.Logger
}

func newUnitRunner(store outbound.RecordStore, rules ledger.Rules, maxAttempts int, now func() time.Time, logger zerolog.Logger) *unitRunner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &unitRunner{
		store:       store,
		rules:       rules,
		maxAttempts: maxAttempts,
		now:         now,
		logger:      logger,
	}
}

// apply runs op against fresh snapshots until its changes commit. The domain
// error returned by op is passed through once the unit is durable, so that
// side effects such as finalizing an expired auction are never lost.
func (r *unitRunner) apply(ctx context.Context, auctionID uuid.UUID, op func(l *ledger.Ledger) error) (*ledger.Ledger, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
		}

		a, bids, err := r.store.Snapshot(ctx, auctionID)
		if err != nil {
			if errors.Is(err, shared.ErrAuctionNotFound) {
				return nil, err
			}
			if !isTransient(err) {
				return nil, fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
			}
			lastErr = err
			r.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Int("attempt", attempt).Msg("Snapshot failed, retrying")
			continue
		}

		l := ledger.New(r.rules, a, bids, r.now())
		opErr := op(l)
		changes := l.Changeset()
		if changes == nil {
			return l, opErr
		}

		// A caller that disconnects mid-commit must not leave a partial unit behind.
		if err := r.store.Commit(context.WithoutCancel(ctx), changes); err != nil {
			if !errors.Is(err, shared.ErrConflict) && !isTransient(err) {
				return nil, fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
			}
			lastErr = err
			r.logger.Debug().Err(err).
				Str("auction_id", auctionID.String()).
				Int64("expected_version", changes.ExpectedVersion).
				Int("attempt", attempt).
				Msg("Commit rejected, retrying with a fresh snapshot")
			continue
		}
		return l, opErr
	}

	if errors.Is(lastErr, shared.ErrConflict) {
		r.logger.Warn().Str("auction_id", auctionID.String()).Int("attempts", r.maxAttempts).Msg("Unit abandoned after repeated conflicts")
		return nil, shared.ErrConflict
	}
	r.logger.Error().Err(lastErr).Str("auction_id", auctionID.String()).Msg("Record store unavailable")
	return nil, fmt.Errorf("%w: %v", shared.ErrUnavailable, lastErr)
}

// isTransient reports whether a store error is worth another attempt.
func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, shared.ErrUnavailable)
}
