package auction

import (
	"fmt"
	"time"

	"auction-engine/internal/domain/shared"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusActive, StatusCancelled},
	StatusActive:    {StatusExtended, StatusEnded, StatusCancelled},
	StatusExtended:  {StatusEnded, StatusCancelled},
	StatusEnded:     {StatusSettled},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the auction to a new status or fails with ErrInvalidTransition.
func (a *Auction) Transition(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}
