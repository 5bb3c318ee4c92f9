package auction

import (
	"time"

	"auction-engine/internal/domain/shared"
)

// ExtensionPolicy configures anti-sniping.
type ExtensionPolicy struct {
	// Window is how far the clock is pushed on each extension.
	Window time.Duration
	// Threshold is how close to the end a bid must land to trigger an extension.
	Threshold time.Duration
}

// DefaultExtensionPolicy extends by 5 minutes for bids in the last 5 minutes.
func DefaultExtensionPolicy() ExtensionPolicy {
	return ExtensionPolicy{Window: 5 * time.Minute, Threshold: 5 * time.Minute}
}

// ShouldExtend decides whether a bid at now pushes the clock, and where to.
func ShouldExtend(endTime, now time.Time, extensionCount, maxExtensions int, policy ExtensionPolicy) (bool, time.Time) {
	if !now.Before(endTime) {
		return false, endTime
	}
	if endTime.Sub(now) > policy.Threshold || extensionCount >= maxExtensions {
		return false, endTime
	}
	return true, endTime.Add(policy.Window)
}

// ApplyExtension records one extension of the clock.
func (a *Auction) ApplyExtension(newEndTime, now time.Time) error {
	if a.ExtensionCount >= a.MaxExtensions {
		return shared.ErrMaxExtensionsReached
	}
	if a.Status == StatusActive {
		if err := a.Transition(StatusExtended, now); err != nil {
			return err
		}
	}
	a.EndTime = newEndTime
	a.ExtensionCount++
	a.UpdatedAt = now
	return nil
}
