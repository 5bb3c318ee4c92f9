package ws

import (
	"encoding/json"
	"fmt"
	"testing"

	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	auctionID := uuid.New()
	raw := fmt.Sprintf(`{"type":"place_bid","request_id":"r1","auction_id":"%s","data":{"amount":"1250.50"}}`, auctionID)

	msg, err := ParseClientMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, MessageTypePlaceBid, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, auctionID, *msg.AuctionID)

	amount, err := msg.Decimal("amount")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("1250.50")))
	require.NoError(t, msg.Validate())

	_, err = ParseClientMessage([]byte(`{not json`))
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = ParseClientMessage([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, shared.ErrMessageTypeRequired)
}

func TestClientMessage_OptionalDecimal(t *testing.T) {
	msg := &ClientMessage{Data: map[string]interface{}{"ceiling": "abc"}}

	missing, err := msg.OptionalDecimal("initial_bid")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = msg.OptionalDecimal("ceiling")
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestNewErrorMessage(t *testing.T) {
	auctionID := uuid.New()
	msg := NewErrorMessage(fmt.Errorf("place bid: %w", shared.ErrBidTooLow), &auctionID)

	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, shared.KindValidation, msg.Code)
	assert.Zero(t, msg.RetryAfter)

	encoded, err := json.Marshal(msg)
	require.NoError(t, err)
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &wire))
	assert.Equal(t, "validation", wire["code"])
	assert.NotContains(t, wire, "retry_after_ms")
}

func TestNewEventMessage(t *testing.T) {
	auctionID := uuid.New()
	msg := NewEventMessage(outbound.Event{
		ID:        "01J0000000000000000000000",
		Type:      outbound.EventTypeBidPlaced,
		AuctionID: auctionID,
		Data:      map[string]interface{}{"amount": "1100"},
		Timestamp: 42,
	})

	assert.Equal(t, MessageType("bid_placed"), msg.Type)
	assert.Equal(t, "01J0000000000000000000000", msg.EventID)
	assert.Equal(t, auctionID, *msg.AuctionID)
	assert.Equal(t, int64(42), msg.Timestamp)
}
