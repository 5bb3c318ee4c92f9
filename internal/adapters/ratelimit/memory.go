// Package ratelimit bounds bid submissions per user over a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults: 5 admissions per user per minute.
const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// MemoryLimiter keeps a sliding log of admission instants per user.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu  sync.Mutex
	log map[uuid.UUID][]time.Time
}

type MemoryLimiterParams struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(params MemoryLimiterParams) *MemoryLimiter {
	l := &MemoryLimiter{
		limit:  params.Limit,
		window: params.Window,
		now:    params.Now,
		log:    make(map[uuid.UUID][]time.Time),
	}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Allow records an attempt if it fits in the window.
func (l *MemoryLimiter) Allow(_ context.Context, userID uuid.UUID) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := prune(l.log[userID], now.Add(-l.window))
	if len(entries) >= l.limit {
		l.log[userID] = entries
		return false, entries[0].Add(l.window).Sub(now)
	}
	l.log[userID] = append(entries, now)
	return true, 0
}

// Sweep drops users with no admissions left in the window.
func (l *MemoryLimiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, entries := range l.log {
		entries = prune(entries, cutoff)
		if len(entries) == 0 {
			delete(l.log, userID)
			removed++
			continue
		}
		l.log[userID] = entries
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// prune drops entries at or before cutoff. entries are in ascending order.
func prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	return entries[i:]
}
