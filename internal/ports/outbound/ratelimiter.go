package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RateLimiter bounds how often a user may submit bids.
type RateLimiter interface {
	// Allow records an attempt and reports whether it fits the quota. When it
	// does not, retryAfter tells the caller how long to wait.
	Allow(ctx context.Context, userID uuid.UUID) (ok bool, retryAfter time.Duration)
}
