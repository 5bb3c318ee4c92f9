package outbound

import (
	"context"

	"github.com/google/uuid"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeBidPlaced         EventType = "bid_placed"
	EventTypeAuctionExtended   EventType = "auction_extended"
	EventTypeAuctionEnded      EventType = "auction_ended"
	EventTypeUserOutbid        EventType = "user_outbid"
	EventTypeParticipantJoined EventType = "participant_joined"
	EventTypeParticipantLeft   EventType = "participant_left"
	EventTypeBidRetracted      EventType = "bid_retracted"
	EventTypeAuctionCancelled  EventType = "auction_cancelled"
	EventTypeAuctionSettled    EventType = "auction_settled"
	EventTypeAuctionStarted    EventType = "auction_started"
	EventTypeProxyCancelled    EventType = "proxy_cancelled"
)

// Event represents a broadcast event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	AuctionID uuid.UUID              `json:"auction_id"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Broadcaster fans events out to watchers
type Broadcaster interface {
	// Publish delivers an event to everyone watching an auction
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error

	// Notify delivers an event to every live connection of one user
	Notify(ctx context.Context, userID uuid.UUID, event Event) error
}
