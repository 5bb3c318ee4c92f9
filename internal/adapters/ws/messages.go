package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypePlaceBid      MessageType = "place_bid"
	MessageTypeSetupProxyBid MessageType = "setup_proxy_bid"
	MessageTypeRetractBid    MessageType = "retract_bid"
	MessageTypeCancelProxy   MessageType = "cancel_proxy_bid"
	MessageTypeExtendAuction MessageType = "extend_auction"
	MessageTypeGetAuction    MessageType = "get_auction"
	MessageTypePing          MessageType = "ping"

	// Server to Client message types. Broadcast events keep their event type.
	MessageTypeBidAccepted  MessageType = "bid_accepted"
	MessageTypeAuctionState MessageType = "auction_state"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	RequestID string                 `json:"request_id,omitempty"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type       MessageType            `json:"type"`
	EventID    string                 `json:"event_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	AuctionID  *uuid.UUID             `json:"auction_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      *string                `json:"error,omitempty"`
	Code       shared.Kind            `json:"code,omitempty"`
	RetryAfter int64                  `json:"retry_after_ms,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorMessage describes err with its taxonomy code. Rate limit errors
// carry how long to wait.
func NewErrorMessage(err error, auctionID *uuid.UUID) *ServerMessage {
	text := err.Error()
	msg := &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &text,
		Code:      shared.Classify(err),
		Timestamp: time.Now().UnixMilli(),
	}
	if retry, ok := shared.RetryAfter(err); ok {
		msg.RetryAfter = retry.Milliseconds()
	}
	return msg
}

// NewEventMessage converts a broadcast event to its wire form.
func NewEventMessage(event outbound.Event) *ServerMessage {
	auctionID := event.AuctionID
	return &ServerMessage{
		Type:      MessageType(event.Type),
		EventID:   event.ID,
		AuctionID: &auctionID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", shared.ErrInvalidRequest)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetAuction, MessageTypeCancelProxy:
		return m.validateAuctionID()

	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		if _, err := m.Decimal("amount"); err != nil {
			return err
		}

	case MessageTypeSetupProxyBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		if _, err := m.Decimal("ceiling"); err != nil {
			return err
		}

	case MessageTypeRetractBid:
		if _, err := m.UUID("bid_id"); err != nil {
			return shared.ErrBidIDRequired
		}

	case MessageTypeExtendAuction:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		if _, ok := m.Data["minutes"].(float64); !ok {
			return shared.ErrInvalidExtension
		}

	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}

// Decimal reads a money field sent either as a JSON string or a number.
func (m *ClientMessage) Decimal(key string) (decimal.Decimal, error) {
	switch v := m.Data[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", key, shared.ErrInvalidAmount)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("%s: %w", key, shared.ErrInvalidAmount)
	}
}

// OptionalDecimal is like Decimal but reports absence.
func (m *ClientMessage) OptionalDecimal(key string) (*decimal.Decimal, error) {
	if _, ok := m.Data[key]; !ok {
		return nil, nil
	}
	d, err := m.Decimal(key)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *ClientMessage) UUID(key string) (uuid.UUID, error) {
	s, ok := m.Data[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: %w", key, shared.ErrInvalidRequest)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", key, shared.ErrInvalidRequest)
	}
	return id, nil
}

func (m *ClientMessage) String(key string) string {
	s, _ := m.Data[key].(string)
	return s
}

func (m *ClientMessage) Int(key string) int {
	switch v := m.Data[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
