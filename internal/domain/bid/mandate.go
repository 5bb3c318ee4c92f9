package bid

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mandate is a bidder's standing authorization to bid up to Ceiling.
// It is derived from the bid rows, never stored.
type Mandate struct {
	BidderID     uuid.UUID
	Ceiling      decimal.Decimal
	RegisteredAt time.Time
	// Bid is the row that currently carries the mandate.
	Bid *Bid
}

// MandateFor returns the bidder's live mandate, or nil.
func MandateFor(bids []*Bid, bidderID uuid.UUID) *Mandate {
	var carrier *Bid
	for _, b := range bids {
		if b.BidderID != bidderID || !b.IsProxy || !b.IsLive() {
			continue
		}
		if carrier == nil || b.Amount.GreaterThan(carrier.Amount) {
			carrier = b
		}
	}
	if carrier == nil {
		return nil
	}

	registered := carrier.CreatedAt
	for _, b := range bids {
		if b.BidderID != bidderID || !b.IsProxy || b.IsRetracted() {
			continue
		}
		if b.Ceiling().Equal(carrier.Ceiling()) && b.CreatedAt.Before(registered) {
			registered = b.CreatedAt
		}
	}
	return &Mandate{
		BidderID:     bidderID,
		Ceiling:      carrier.Ceiling(),
		RegisteredAt: registered,
		Bid:          carrier,
	}
}

// LiveMandates returns one mandate per bidder, ordered by ceiling desc then
// registration time asc.
func LiveMandates(bids []*Bid) []*Mandate {
	seen := make(map[uuid.UUID]bool)
	var out []*Mandate
	for _, b := range bids {
		if !b.IsProxy || !b.IsLive() || seen[b.BidderID] {
			continue
		}
		seen[b.BidderID] = true
		if m := MandateFor(bids, b.BidderID); m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outranks(out[j])
	})
	return out
}

// Outranks reports whether m takes priority over other.
func (m *Mandate) Outranks(other *Mandate) bool {
	if c := m.Ceiling.Cmp(other.Ceiling); c != 0 {
		return c > 0
	}
	if !m.RegisteredAt.Equal(other.RegisteredAt) {
		return m.RegisteredAt.Before(other.RegisteredAt)
	}
	return m.BidderID.String() < other.BidderID.String()
}
