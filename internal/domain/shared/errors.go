package shared

import (
	"errors"
	"fmt"
	"time"
)

// Domain-specific errors
var (
	// Validation errors
	ErrBidTooLow           = errors.New("bid amount is below the minimum next bid")
	ErrDuplicateAmount     = errors.New("bidder already has a bid at this amount")
	ErrSelfBid             = errors.New("seller cannot bid on their own auction")
	ErrInvalidProxyCeiling = errors.New("proxy ceiling must be at least the bid amount")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrInvalidExtension    = errors.New("extension must be between 1 and 60 minutes")
	ErrInvalidAuction      = errors.New("invalid auction terms")

	// Policy errors
	ErrNotActive              = errors.New("auction is not accepting bids")
	ErrAuctionEnded           = errors.New("auction has ended")
	ErrRetractionWindowClosed = errors.New("bid can no longer be retracted")
	ErrMaxExtensionsReached   = errors.New("auction reached its extension limit")
	ErrProxyAlreadyActive     = errors.New("bidder already has an active proxy bid")
	ErrNotBidOwner            = errors.New("only the bidder can retract a bid")
	ErrNotAuctionOwner        = errors.New("only the seller can manage this auction")
	ErrAlreadyRetracted       = errors.New("bid already retracted")
	ErrBidWon                 = errors.New("winning bids cannot be retracted")
	ErrInvalidTransition      = errors.New("invalid auction status transition")

	// Lookup errors
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrNoActiveProxy   = errors.New("no active proxy bid found")

	// Rate limiting
	ErrRateLimited = errors.New("rate limit exceeded")

	// Concurrency errors
	ErrConflict = errors.New("auction was modified concurrently")

	// Infrastructure errors
	ErrUnavailable = errors.New("record store unavailable")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrAuctionIDRequired   = errors.New("auction_id is required")
	ErrBidIDRequired       = errors.New("bid_id is required")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnknownMessageType  = errors.New("unknown message type")
)

// RateLimitedError carries how long the caller should wait before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the wait carried by a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindPolicy         Kind = "policy"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindConcurrency    Kind = "concurrency"
	KindInfrastructure Kind = "infrastructure"
	KindUnknown        Kind = "unknown"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrBidTooLow, ErrDuplicateAmount, ErrSelfBid, ErrInvalidProxyCeiling,
		ErrInvalidAmount, ErrInvalidExtension, ErrInvalidAuction, ErrAuctionIDRequired, ErrBidIDRequired,
		ErrInvalidRequest, ErrMessageTypeRequired, ErrUnknownMessageType}},
	{KindPolicy, []error{ErrNotActive, ErrAuctionEnded, ErrRetractionWindowClosed, ErrMaxExtensionsReached,
		ErrProxyAlreadyActive, ErrNotBidOwner, ErrNotAuctionOwner, ErrAlreadyRetracted, ErrBidWon,
		ErrInvalidTransition}},
	{KindNotFound, []error{ErrAuctionNotFound, ErrBidNotFound, ErrNoActiveProxy}},
	{KindRateLimit, []error{ErrRateLimited}},
	{KindConcurrency, []error{ErrConflict}},
	{KindInfrastructure, []error{ErrUnavailable}},
}

// Classify returns the taxonomy bucket of err.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindUnknown
}

// IsRetryable reports whether the caller may resubmit the same request unchanged.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindConcurrency, KindInfrastructure, KindRateLimit:
		return true
	}
	return false
}
