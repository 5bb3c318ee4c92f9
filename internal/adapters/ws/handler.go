package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auction-engine/internal/adapters/hub"
	"auction-engine/internal/config"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const requestTimeout = 10 * time.Second

var errBusy = fmt.Errorf("too many requests in flight: %w", shared.ErrUnavailable)

// Rooms is the part of the hub the handler needs.
type Rooms interface {
	Register(conn hub.Conn)
	Unregister(conn hub.Conn)
	Subscribe(auctionID uuid.UUID, conn hub.Conn) int
	Unsubscribe(auctionID uuid.UUID, conn hub.Conn) int
	Presence(auctionID uuid.UUID) int
	// Touch keeps the rooms of conn from being collected as idle.
	Touch(conn hub.Conn)
}

// WsHandler upgrades connections and routes client messages to the services
type WsHandler struct {
	rooms          Rooms
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	config         config.WebSocketConfig
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Rooms          Rooms
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Config         config.WebSocketConfig
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		rooms: params.Rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  params.Config.ReadBufferSize,
			WriteBufferSize: params.Config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		config:         params.Config,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:     userID,
		Conn:       conn,
		Handler:    handler,
		SendBuffer: handler.config.SendBufferSize,
		MaxWorkers: handler.config.MaxWorkers,
		MaxQueue:   handler.config.MaxCapacity,
		Logger:     handler.logger,
	})

	handler.rooms.Register(client)
	client.Start()

	// Wait for client to disconnect
	go func() {
		<-client.Done()
		handler.rooms.Unregister(client)
		handler.logger.Info().Str("client_id", client.ID()).Str("user_id", userID.String()).Msg("WebSocket client disconnected")
	}()

	handler.logger.Info().Str("client_id", client.ID()).Str("user_id", userID.String()).Msg("WebSocket client connected")
}

// HandleClientMessage executes one client request and returns the reply.
func (handler *WsHandler) HandleClientMessage(ctx context.Context, client hub.Conn, msg *ClientMessage) *ServerMessage {
	if err := msg.Validate(); err != nil {
		return NewErrorMessage(err, msg.AuctionID)
	}

	handler.rooms.Touch(client)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var (
		reply *ServerMessage
		err   error
	)
	switch msg.Type {
	case MessageTypePing:
		return NewServerMessage(MessageTypePong)
	case MessageTypeSubscribe:
		reply, err = handler.handleSubscribe(ctx, client, msg)
	case MessageTypeUnsubscribe:
		reply = handler.handleUnsubscribe(client, msg)
	case MessageTypePlaceBid:
		reply, err = handler.handlePlaceBid(ctx, client, msg)
	case MessageTypeSetupProxyBid:
		reply, err = handler.handleSetupProxyBid(ctx, client, msg)
	case MessageTypeRetractBid:
		reply, err = handler.handleRetractBid(ctx, client, msg)
	case MessageTypeCancelProxy:
		reply, err = handler.handleCancelProxy(ctx, client, msg)
	case MessageTypeExtendAuction:
		reply, err = handler.handleExtendAuction(ctx, client, msg)
	case MessageTypeGetAuction:
		reply, err = handler.handleGetAuction(ctx, msg)
	default:
		err = shared.ErrUnknownMessageType
	}

	if err != nil {
		if shared.Classify(err) == shared.KindUnknown || shared.Classify(err) == shared.KindInfrastructure {
			handler.logger.Error().Err(err).Str("client_id", client.ID()).Str("message_type", string(msg.Type)).
				Msg("Failed to handle client message")
		}
		return NewErrorMessage(err, msg.AuctionID)
	}
	return reply
}

func (handler *WsHandler) handleSubscribe(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return nil, err
	}

	count := handler.rooms.Subscribe(a.ID, client)

	handler.logger.Info().Str("client_id", client.ID()).Str("auction_id", a.ID.String()).Msg("Client subscribed to auction")

	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = msg.AuctionID
	response.Data["auction"] = a
	response.Data["subscribed"] = true
	response.Data["presence"] = count
	return response, nil
}

func (handler *WsHandler) handleUnsubscribe(client hub.Conn, msg *ClientMessage) *ServerMessage {
	count := handler.rooms.Unsubscribe(*msg.AuctionID, client)

	handler.logger.Info().Str("client_id", client.ID()).Str("auction_id", msg.AuctionID.String()).Msg("Client unsubscribed from auction")

	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = msg.AuctionID
	response.Data["subscribed"] = false
	response.Data["presence"] = count
	return response
}

func (handler *WsHandler) handlePlaceBid(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	amount, err := msg.Decimal("amount")
	if err != nil {
		return nil, err
	}
	ceiling, err := msg.OptionalDecimal("proxy_ceiling")
	if err != nil {
		return nil, err
	}

	admission, err := handler.bidService.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID:    *msg.AuctionID,
		BidderID:     client.UserID(),
		Amount:       amount,
		ProxyCeiling: ceiling,
	})
	if err != nil {
		return nil, err
	}

	handler.logger.Info().
		Str("bid_id", admission.Bid.ID.String()).
		Str("auction_id", msg.AuctionID.String()).
		Str("bidder_id", client.UserID().String()).
		Str("amount", amount.String()).
		Msg("Bid placed successfully")

	return admissionMessage(msg.AuctionID, admission), nil
}

func (handler *WsHandler) handleSetupProxyBid(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	ceiling, err := msg.Decimal("ceiling")
	if err != nil {
		return nil, err
	}
	initial, err := msg.OptionalDecimal("initial_bid")
	if err != nil {
		return nil, err
	}

	admission, err := handler.bidService.SetupProxyBid(ctx, inbound.SetupProxyBidRequest{
		AuctionID:  *msg.AuctionID,
		BidderID:   client.UserID(),
		Ceiling:    ceiling,
		InitialBid: initial,
	})
	if err != nil {
		return nil, err
	}
	return admissionMessage(msg.AuctionID, admission), nil
}

func admissionMessage(auctionID *uuid.UUID, admission *inbound.Admission) *ServerMessage {
	response := NewServerMessage(MessageTypeBidAccepted)
	response.AuctionID = auctionID
	response.Data["bid"] = admission.Bid
	response.Data["placed"] = admission.Placed
	response.Data["delta"] = admission.Delta
	if admission.Leader != nil {
		response.Data["leader"] = admission.Leader
	}
	return response
}

func (handler *WsHandler) handleRetractBid(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	bidID, err := msg.UUID("bid_id")
	if err != nil {
		return nil, err
	}

	retraction, err := handler.bidService.RetractBid(ctx, inbound.RetractBidRequest{
		BidID:       bidID,
		RequestedBy: client.UserID(),
		Reason:      msg.String("reason"),
	})
	if err != nil {
		return nil, err
	}

	auctionID := retraction.Bid.AuctionID
	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = &auctionID
	response.Data["retracted"] = retraction.Bid
	response.Data["delta"] = retraction.Delta
	if retraction.Leader != nil {
		response.Data["leader"] = retraction.Leader
	}
	return response, nil
}

func (handler *WsHandler) handleCancelProxy(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	kept, err := handler.bidService.CancelProxyBid(ctx, inbound.CancelProxyBidRequest{
		AuctionID: *msg.AuctionID,
		BidderID:  client.UserID(),
	})
	if err != nil {
		return nil, err
	}

	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = msg.AuctionID
	response.Data["proxy_cancelled"] = true
	response.Data["bid"] = kept
	return response, nil
}

func (handler *WsHandler) handleExtendAuction(ctx context.Context, client hub.Conn, msg *ClientMessage) (*ServerMessage, error) {
	delta, err := handler.auctionService.ExtendAuction(ctx, inbound.ExtendAuctionRequest{
		AuctionID:   *msg.AuctionID,
		RequestedBy: client.UserID(),
		Minutes:     msg.Int("minutes"),
		Reason:      msg.String("reason"),
	})
	if err != nil {
		return nil, err
	}

	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = msg.AuctionID
	response.Data["delta"] = delta
	return response, nil
}

func (handler *WsHandler) handleGetAuction(ctx context.Context, msg *ClientMessage) (*ServerMessage, error) {
	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return nil, err
	}

	response := NewServerMessage(MessageTypeAuctionState)
	response.AuctionID = msg.AuctionID
	response.Data["auction"] = a
	response.Data["presence"] = handler.rooms.Presence(a.ID)
	return response, nil
}
