package ws

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/adapters/hub"
	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/inbound"
	"auction-engine/internal/ports/inbound/mocks"
	"auction-engine/internal/ports/outbound"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	id     string
	userID uuid.UUID
}

func (c *stubConn) ID() string                  { return c.id }
func (c *stubConn) UserID() uuid.UUID           { return c.userID }
func (c *stubConn) Deliver(outbound.Event) bool { return true }
func (c *stubConn) Close()                      {}

type fakeRooms struct {
	mu      sync.Mutex
	members map[uuid.UUID]map[string]bool
	touched int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{members: make(map[uuid.UUID]map[string]bool)}
}

func (r *fakeRooms) Register(hub.Conn)   {}
func (r *fakeRooms) Unregister(hub.Conn) {}

func (r *fakeRooms) Subscribe(auctionID uuid.UUID, conn hub.Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[auctionID] == nil {
		r.members[auctionID] = make(map[string]bool)
	}
	r.members[auctionID][conn.ID()] = true
	return len(r.members[auctionID])
}

func (r *fakeRooms) Unsubscribe(auctionID uuid.UUID, conn hub.Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[auctionID], conn.ID())
	return len(r.members[auctionID])
}

func (r *fakeRooms) Presence(auctionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[auctionID])
}

func (r *fakeRooms) Touch(hub.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched++
}

type handlerFixture struct {
	handler  *WsHandler
	rooms    *fakeRooms
	auctions *mocks.MockAuctionService
	bids     *mocks.MockBidService
	client   *stubConn
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	ctrl := gomock.NewController(t)
	f := &handlerFixture{
		rooms:    newFakeRooms(),
		auctions: mocks.NewMockAuctionService(ctrl),
		bids:     mocks.NewMockBidService(ctrl),
		client:   &stubConn{id: "conn-1", userID: uuid.New()},
	}
	f.handler = NewHandler(WsHandlerParams{
		Rooms:          f.rooms,
		AuctionService: f.auctions,
		BidService:     f.bids,
		Logger:         zerolog.Nop(),
	})
	return f
}

func TestHandleClientMessage_Subscribe(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID := uuid.New()

	f.auctions.EXPECT().GetAuction(gomock.Any(), auctionID).
		Return(&auction.Auction{ID: auctionID, Status: auction.StatusActive}, nil)

	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type:      MessageTypeSubscribe,
		AuctionID: &auctionID,
	})

	require.Equal(t, MessageTypeAuctionState, reply.Type)
	assert.Equal(t, true, reply.Data["subscribed"])
	assert.Equal(t, 1, reply.Data["presence"])
	assert.Equal(t, 1, f.rooms.Presence(auctionID))

	reply = f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type:      MessageTypeUnsubscribe,
		AuctionID: &auctionID,
	})
	assert.Equal(t, false, reply.Data["subscribed"])
	assert.Equal(t, 0, f.rooms.Presence(auctionID))
}

func TestHandleClientMessage_SubscribeUnknownAuction(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID := uuid.New()

	f.auctions.EXPECT().GetAuction(gomock.Any(), auctionID).Return(nil, shared.ErrAuctionNotFound)

	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type:      MessageTypeSubscribe,
		AuctionID: &auctionID,
	})

	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, shared.KindNotFound, reply.Code)
	assert.Equal(t, 0, f.rooms.Presence(auctionID))
}

func TestHandleClientMessage_PlaceBid(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID := uuid.New()
	placed := &bid.Bid{ID: uuid.New(), AuctionID: auctionID, BidderID: f.client.userID, Amount: decimal.NewFromInt(1100)}

	f.bids.EXPECT().PlaceBid(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req inbound.PlaceBidRequest) (*inbound.Admission, error) {
			assert.Equal(t, auctionID, req.AuctionID)
			assert.Equal(t, f.client.userID, req.BidderID)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(1100)))
			require.NotNil(t, req.ProxyCeiling)
			assert.True(t, req.ProxyCeiling.Equal(decimal.NewFromInt(1500)))
			return &inbound.Admission{Bid: placed, Placed: []*bid.Bid{placed}}, nil
		})

	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type:      MessageTypePlaceBid,
		AuctionID: &auctionID,
		Data:      map[string]interface{}{"amount": "1100", "proxy_ceiling": float64(1500)},
	})

	require.Equal(t, MessageTypeBidAccepted, reply.Type)
	assert.Equal(t, placed, reply.Data["bid"])
}

func TestHandleClientMessage_RateLimited(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID := uuid.New()

	f.bids.EXPECT().PlaceBid(gomock.Any(), gomock.Any()).
		Return(nil, &shared.RateLimitedError{RetryAfter: 1500 * time.Millisecond})

	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type:      MessageTypePlaceBid,
		AuctionID: &auctionID,
		Data:      map[string]interface{}{"amount": float64(2000)},
	})

	require.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, shared.KindRateLimit, reply.Code)
	assert.Equal(t, int64(1500), reply.RetryAfter)
}

func TestHandleClientMessage_RetractUsesCaller(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID, bidID := uuid.New(), uuid.New()

	f.bids.EXPECT().
		RetractBid(gomock.Any(), inbound.RetractBidRequest{BidID: bidID, RequestedBy: f.client.userID, Reason: "typo"}).
		Return(&inbound.Retraction{Bid: &bid.Bid{ID: bidID, AuctionID: auctionID, Status: bid.StatusRetracted}}, nil)

	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
		Type: MessageTypeRetractBid,
		Data: map[string]interface{}{"bid_id": bidID.String(), "reason": "typo"},
	})

	require.Equal(t, MessageTypeAuctionState, reply.Type)
	require.NotNil(t, reply.AuctionID)
	assert.Equal(t, auctionID, *reply.AuctionID)
}

func TestHandleClientMessage_CancelProxy(t *testing.T) {
	auctionID := uuid.New()

	tests := []struct {
		name     string
		kept     *bid.Bid
		err      error
		wantType MessageType
		wantCode shared.Kind
	}{
		{
			name:     "leading bid kept",
			kept:     &bid.Bid{ID: uuid.New(), AuctionID: auctionID, Status: bid.StatusWinning},
			wantType: MessageTypeAuctionState,
		},
		{
			name:     "no mandate",
			err:      fmt.Errorf("cancel: %w", shared.ErrNoActiveProxy),
			wantType: MessageTypeError,
			wantCode: shared.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.bids.EXPECT().
				CancelProxyBid(gomock.Any(), inbound.CancelProxyBidRequest{AuctionID: auctionID, BidderID: f.client.userID}).
				Return(tt.kept, tt.err)

			reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{
				Type:      MessageTypeCancelProxy,
				AuctionID: &auctionID,
			})

			require.Equal(t, tt.wantType, reply.Type)
			assert.Equal(t, 1, f.rooms.touched)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, reply.Code)
				return
			}
			assert.Equal(t, true, reply.Data["proxy_cancelled"])
			assert.Equal(t, tt.kept, reply.Data["bid"])
		})
	}
}

func TestHandleClientMessage_Invalid(t *testing.T) {
	f := newHandlerFixture(t)
	auctionID := uuid.New()

	tests := []struct {
		name string
		msg  *ClientMessage
		want error
	}{
		{"missing auction", &ClientMessage{Type: MessageTypeSubscribe}, shared.ErrAuctionIDRequired},
		{"missing amount", &ClientMessage{Type: MessageTypePlaceBid, AuctionID: &auctionID}, shared.ErrInvalidAmount},
		{"bad bid id", &ClientMessage{Type: MessageTypeRetractBid, Data: map[string]interface{}{"bid_id": "nope"}}, shared.ErrBidIDRequired},
		{"missing minutes", &ClientMessage{Type: MessageTypeExtendAuction, AuctionID: &auctionID}, shared.ErrInvalidExtension},
		{"cancel proxy without auction", &ClientMessage{Type: MessageTypeCancelProxy}, shared.ErrAuctionIDRequired},
		{"unknown type", &ClientMessage{Type: "dance"}, shared.ErrUnknownMessageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.handler.HandleClientMessage(context.Background(), f.client, tt.msg)
			require.Equal(t, MessageTypeError, reply.Type)
			require.NotNil(t, reply.Error)
			assert.Contains(t, *reply.Error, tt.want.Error())
			assert.Equal(t, shared.KindValidation, reply.Code)
		})
	}
}

func TestHandleClientMessage_Ping(t *testing.T) {
	f := newHandlerFixture(t)
	reply := f.handler.HandleClientMessage(context.Background(), f.client, &ClientMessage{Type: MessageTypePing})
	assert.Equal(t, MessageTypePong, reply.Type)
}
