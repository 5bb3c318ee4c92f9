package shared

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventIDs hands out lexically sortable event ids, monotonic within this
// instance.
type EventIDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewEventIDs() *EventIDs {
	return &EventIDs{entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)}
}

// Next returns a new ULID string.
func (g *EventIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Now(), g.entropy).String()
}
