package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		kind      Kind
		retryable bool
	}{
		{ErrBidTooLow, KindValidation, false},
		{fmt.Errorf("wrapped: %w", ErrSelfBid), KindValidation, false},
		{ErrAuctionEnded, KindPolicy, false},
		{ErrNotBidOwner, KindPolicy, false},
		{ErrBidNotFound, KindNotFound, false},
		{ErrNoActiveProxy, KindNotFound, false},
		{&RateLimitedError{RetryAfter: time.Second}, KindRateLimit, true},
		{fmt.Errorf("commit: %w", ErrConflict), KindConcurrency, true},
		{ErrUnavailable, KindInfrastructure, true},
		{errors.New("boom"), KindUnknown, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.err), tt.err.Error())
		assert.Equal(t, tt.retryable, IsRetryable(tt.err), tt.err.Error())
	}
	assert.Equal(t, Kind(""), Classify(nil))
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("place bid: %w", &RateLimitedError{RetryAfter: 1500 * time.Millisecond})

	wait, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, wait)
	assert.ErrorIs(t, err, ErrRateLimited)

	_, ok = RetryAfter(ErrConflict)
	assert.False(t, ok)
}
