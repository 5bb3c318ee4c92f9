package ws

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// WsClient is one WebSocket connection. Inbound messages are handled on a
// small per-client worker pool; outbound messages go through a bounded buffer
// drained by a single writer.
type WsClient struct {
	id         string
	userID     uuid.UUID
	conn       *websocket.Conn
	sendChan   chan *ServerMessage
	ctx        context.Context
	cancel     context.CancelFunc
	handler    *WsHandler
	workerPool *pond.WorkerPool
	stopped    bool
	mu         sync.Mutex
	logger     zerolog.Logger
}

type WsClientParams struct {
	UserID     uuid.UUID
	Conn       *websocket.Conn
	Handler    *WsHandler
	SendBuffer int
	MaxWorkers int
	MaxQueue   int
	Logger     zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())

	workers, queue, buffer := params.MaxWorkers, params.MaxQueue, params.SendBuffer
	if workers <= 0 {
		workers = 10
	}
	if queue <= 0 {
		queue = 100
	}
	if buffer <= 0 {
		buffer = 100
	}

	pool := pond.New(
		workers,
		queue,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
	)
	id := uuid.NewString()
	return &WsClient{
		id:         id,
		userID:     params.UserID,
		conn:       params.Conn,
		sendChan:   make(chan *ServerMessage, buffer),
		ctx:        ctx,
		cancel:     cancel,
		handler:    params.Handler,
		workerPool: pool,
		logger: params.Logger.With().
			Str("component", "ws_client").
			Str("client_id", id).
			Str("user_id", params.UserID.String()).
			Logger(),
	}
}

func (client *WsClient) ID() string {
	return client.id
}

func (client *WsClient) UserID() uuid.UUID {
	return client.userID
}

// Done is closed once the client has disconnected or been stopped.
func (client *WsClient) Done() <-chan struct{} {
	return client.ctx.Done()
}

func (client *WsClient) Start() {
	go client.messageSender()
	go client.messageReceiver()
}

// Close stops the client. It is safe to call more than once.
func (client *WsClient) Close() {
	client.mu.Lock()
	if client.stopped {
		client.mu.Unlock()
		return
	}
	client.stopped = true
	client.mu.Unlock()

	client.cancel()
	client.conn.Close()
	client.workerPool.Stop()
}

// Deliver queues a broadcast event without blocking.
func (client *WsClient) Deliver(event outbound.Event) bool {
	return client.Send(NewEventMessage(event))
}

// Send queues a message without blocking. It reports false when the client
// is stopped or its buffer is full.
func (client *WsClient) Send(msg *ServerMessage) bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.stopped {
		return false
	}

	select {
	case client.sendChan <- msg:
		return true
	default:
		return false
	}
}

func (client *WsClient) messageSender() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.sendChan:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				client.logger.Error().Err(err).Msg("Failed to send message to client")
				client.cancel()
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.cancel()
				return
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (client *WsClient) messageReceiver() {
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.handler.rooms.Touch(client)
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				client.logger.Error().Err(err).Msg("WebSocket read error for client")
			} else {
				client.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed for client")
			}
			// Cancel context to notify handler about disconnection
			client.cancel()
			return
		}

		submitted := client.workerPool.TrySubmit(func() {
			client.handleMessage(message)
		})
		if !submitted {
			client.logger.Warn().Msg("Client worker pool saturated, rejecting message")
			client.Send(NewErrorMessage(errBusy, nil))
		}
	}
}

func (client *WsClient) handleMessage(data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		client.Send(NewErrorMessage(err, nil))
		return
	}

	reply := client.handler.HandleClientMessage(client.ctx, client, msg)
	if reply == nil {
		return
	}
	reply.RequestID = msg.RequestID
	if !client.Send(reply) {
		client.logger.Warn().Str("message_type", string(reply.Type)).Msg("Dropped reply to slow client")
	}
}
