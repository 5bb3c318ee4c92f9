package auction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// IncrementStep applies Increment to prices strictly below Below.
type IncrementStep struct {
	Below     decimal.Decimal
	Increment decimal.Decimal
}

// IncrementTable is a step function from current price to the minimum raise.
type IncrementTable struct {
	steps []IncrementStep
	top   decimal.Decimal
}

// DefaultIncrementTable returns 50 below 1000, 100 below 5000, 250 below 10000 and 500 above.
func DefaultIncrementTable() IncrementTable {
	return IncrementTable{
		steps: []IncrementStep{
			{Below: decimal.NewFromInt(1000), Increment: decimal.NewFromInt(50)},
			{Below: decimal.NewFromInt(5000), Increment: decimal.NewFromInt(100)},
			{Below: decimal.NewFromInt(10000), Increment: decimal.NewFromInt(250)},
		},
		top: decimal.NewFromInt(500),
	}
}

// NewIncrementTable validates and sorts steps. top applies above the last bound.
func NewIncrementTable(steps []IncrementStep, top decimal.Decimal) (IncrementTable, error) {
	if !top.IsPositive() {
		return IncrementTable{}, fmt.Errorf("top increment must be positive, got %s", top)
	}
	sorted := append([]IncrementStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Below.LessThan(sorted[j].Below) })
	for i, s := range sorted {
		if !s.Increment.IsPositive() {
			return IncrementTable{}, fmt.Errorf("increment below %s must be positive", s.Below)
		}
		if i > 0 && s.Below.Equal(sorted[i-1].Below) {
			return IncrementTable{}, fmt.Errorf("duplicate increment bound %s", s.Below)
		}
	}
	return IncrementTable{steps: sorted, top: top}, nil
}

// ParseIncrementTable reads "1000:50,5000:100,10000:250,*:500".
func ParseIncrementTable(spec string) (IncrementTable, error) {
	var steps []IncrementStep
	var top decimal.Decimal
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bound, inc, ok := strings.Cut(part, ":")
		if !ok {
			return IncrementTable{}, fmt.Errorf("invalid increment step %q", part)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(inc))
		if err != nil {
			return IncrementTable{}, fmt.Errorf("invalid increment in %q: %w", part, err)
		}
		if strings.TrimSpace(bound) == "*" {
			top = amount
			continue
		}
		below, err := decimal.NewFromString(strings.TrimSpace(bound))
		if err != nil {
			return IncrementTable{}, fmt.Errorf("invalid bound in %q: %w", part, err)
		}
		steps = append(steps, IncrementStep{Below: below, Increment: amount})
	}
	return NewIncrementTable(steps, top)
}

// For returns the increment that applies at price.
func (t IncrementTable) For(price decimal.Decimal) decimal.Decimal {
	for _, s := range t.steps {
		if price.LessThan(s.Below) {
			return s.Increment
		}
	}
	return t.top
}

func (t IncrementTable) String() string {
	parts := make([]string, 0, len(t.steps)+1)
	for _, s := range t.steps {
		parts = append(parts, s.Below.String()+":"+s.Increment.String())
	}
	parts = append(parts, "*:"+t.top.String())
	return strings.Join(parts, ",")
}
