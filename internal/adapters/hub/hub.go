// Package hub fans auction events out to the WebSocket connections of this
// instance.
package hub

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultRoomTTL    = 30 * time.Minute
	defaultGCInterval = time.Minute
	presenceTimeout   = 2 * time.Second
)

// Conn is a live client connection.
type Conn interface {
	ID() string
	UserID() uuid.UUID
	// Deliver queues an event without blocking. It returns false when the
	// connection is closed or its buffer is full.
	Deliver(event outbound.Event) bool
	Close()
}

// PresenceStore counts the distinct users watching an auction across every
// instance. Join and Leave are called once per user and instance, on the
// user's first and last local connection in the room.
type PresenceStore interface {
	Join(ctx context.Context, auctionID, userID uuid.UUID) (int, error)
	Leave(ctx context.Context, auctionID, userID uuid.UUID) (int, error)
	Count(ctx context.Context, auctionID uuid.UUID) (int, error)
}

type room struct {
	members map[string]Conn
	// users: key: userID -> value: number of the user's connections in the room
	users        map[uuid.UUID]int
	lastActivity time.Time
}

// Hub tracks rooms (one per auction) and the connections of every user. A
// room is removed as soon as its last member leaves, or once nobody in it has
// shown activity for RoomTTL.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
	users map[uuid.UUID]map[string]Conn
	rooms map[uuid.UUID]*room
	// joined: key: connID -> value: auctions the connection is subscribed to
	joined map[string]map[uuid.UUID]struct{}

	// presenceOut carries participant events, the hub itself unless a relay
	// is installed.
	presenceOut outbound.Broadcaster
	presence    PresenceStore
	ids         *shared.EventIDs

	roomTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

type HubParams struct {
	RoomTTL time.Duration
	// Presence is optional. Without it counts cover this instance only.
	Presence PresenceStore
	Now      func() time.Time
	Logger   zerolog.Logger
}

// New creates an empty hub
func New(params HubParams) *Hub {
	h := &Hub{
		conns:    make(map[string]Conn),
		users:    make(map[uuid.UUID]map[string]Conn),
		rooms:    make(map[uuid.UUID]*room),
		joined:   make(map[string]map[uuid.UUID]struct{}),
		presence: params.Presence,
		ids:      shared.NewEventIDs(),
		roomTTL:  params.RoomTTL,
		now:      params.Now,
		logger:   params.Logger.With().Str("component", "hub").Logger(),
	}
	if h.roomTTL <= 0 {
		h.roomTTL = DefaultRoomTTL
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.presenceOut = h
	return h
}

// RelayPresence sends participant events through b instead of straight to
// the local rooms, so that watchers on other instances see them too.
func (h *Hub) RelayPresence(b outbound.Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presenceOut = b
}

// Register makes a connection reachable through Notify.
func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn.ID()] = conn
	byUser, ok := h.users[conn.UserID()]
	if !ok {
		byUser = make(map[string]Conn)
		h.users[conn.UserID()] = byUser
	}
	byUser[conn.ID()] = conn

	h.logger.Debug().Str("conn_id", conn.ID()).Str("user_id", conn.UserID().String()).
		Int("total_connections", len(h.conns)).Msg("Connection registered")
}

// Unregister removes a connection from every room and closes it.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	left := h.detach(conn)
	h.mu.Unlock()

	conn.Close()
	for auctionID, count := range left {
		h.presenceChanged(auctionID, outbound.EventTypeParticipantLeft, conn.UserID(), count)
	}
}

// detach drops conn from the registry and its rooms. It reports the rooms
// that conn's user no longer watches from this instance, with their remaining
// local user count. Callers hold h.mu.
func (h *Hub) detach(conn Conn) map[uuid.UUID]int {
	id := conn.ID()
	if _, ok := h.conns[id]; ok {
		delete(h.conns, id)
		if byUser := h.users[conn.UserID()]; byUser != nil {
			delete(byUser, id)
			if len(byUser) == 0 {
				delete(h.users, conn.UserID())
			}
		}
		h.logger.Debug().Str("conn_id", id).Int("total_connections", len(h.conns)).Msg("Connection unregistered")
	}

	left := make(map[uuid.UUID]int, len(h.joined[id]))
	for auctionID := range h.joined[id] {
		if count, userLeft := h.leaveRoom(auctionID, conn); userLeft {
			left[auctionID] = count
		}
	}
	delete(h.joined, id)
	return left
}

// leaveRoom removes conn from one room and deletes the room once it is empty.
// userLeft is true when conn was the user's last connection in the room.
// Callers hold h.mu.
func (h *Hub) leaveRoom(auctionID uuid.UUID, conn Conn) (count int, userLeft bool) {
	r, ok := h.rooms[auctionID]
	if !ok {
		return 0, false
	}
	if _, member := r.members[conn.ID()]; !member {
		return len(r.users), false
	}
	delete(r.members, conn.ID())
	r.lastActivity = h.now()

	userID := conn.UserID()
	if r.users[userID]--; r.users[userID] <= 0 {
		delete(r.users, userID)
		userLeft = true
	}
	if len(r.members) == 0 {
		delete(h.rooms, auctionID)
		h.logger.Debug().Str("auction_id", auctionID.String()).Msg("Room emptied")
	}
	return len(r.users), userLeft
}

// Subscribe adds conn to the room of an auction and returns the number of
// distinct users watching it. A connection that is not registered, or no
// longer is, cannot join and gets 0.
func (h *Hub) Subscribe(auctionID uuid.UUID, conn Conn) int {
	h.mu.Lock()
	if _, live := h.conns[conn.ID()]; !live {
		h.mu.Unlock()
		h.logger.Debug().Str("conn_id", conn.ID()).Str("auction_id", auctionID.String()).
			Msg("Ignoring subscribe from unregistered connection")
		return 0
	}
	r, ok := h.rooms[auctionID]
	if !ok {
		r = &room{members: make(map[string]Conn), users: make(map[uuid.UUID]int)}
		h.rooms[auctionID] = r
	}
	r.lastActivity = h.now()
	userID := conn.UserID()
	_, already := r.members[conn.ID()]
	firstOfUser := false
	if !already {
		r.members[conn.ID()] = conn
		firstOfUser = r.users[userID] == 0
		r.users[userID]++
		if h.joined[conn.ID()] == nil {
			h.joined[conn.ID()] = make(map[uuid.UUID]struct{})
		}
		h.joined[conn.ID()][auctionID] = struct{}{}
	}
	count := len(r.users)
	h.mu.Unlock()

	if !firstOfUser {
		return h.count(auctionID, count)
	}
	return h.presenceChanged(auctionID, outbound.EventTypeParticipantJoined, userID, count)
}

// Unsubscribe removes conn from the room of an auction and returns the
// remaining number of distinct users watching it.
func (h *Hub) Unsubscribe(auctionID uuid.UUID, conn Conn) int {
	h.mu.Lock()
	count, userLeft := h.leaveRoom(auctionID, conn)
	if joined := h.joined[conn.ID()]; joined != nil {
		delete(joined, auctionID)
	}
	h.mu.Unlock()

	if !userLeft {
		return h.count(auctionID, count)
	}
	return h.presenceChanged(auctionID, outbound.EventTypeParticipantLeft, conn.UserID(), count)
}

// Presence returns the number of distinct users watching an auction.
func (h *Hub) Presence(auctionID uuid.UUID) int {
	h.mu.RLock()
	local := 0
	if r, ok := h.rooms[auctionID]; ok {
		local = len(r.users)
	}
	h.mu.RUnlock()
	return h.count(auctionID, local)
}

// Touch marks every room of conn as active.
func (h *Hub) Touch(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for auctionID := range h.joined[conn.ID()] {
		if r, ok := h.rooms[auctionID]; ok {
			r.lastActivity = now
		}
	}
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish delivers an event to every member of the auction's room.
func (h *Hub) Publish(_ context.Context, auctionID uuid.UUID, event outbound.Event) error {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	r.lastActivity = h.now()
	members := make([]Conn, 0, len(r.members))
	for _, c := range r.members {
		members = append(members, c)
	}
	h.mu.Unlock()

	h.deliver(members, event)
	return nil
}

// Notify delivers an event to every connection of a user, whatever rooms
// they are in.
func (h *Hub) Notify(_ context.Context, userID uuid.UUID, event outbound.Event) error {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
	return nil
}

// deliver never waits on a connection; slow or dead ones are dropped.
func (h *Hub) deliver(targets []Conn, event outbound.Event) {
	for _, c := range targets {
		if c.Deliver(event) {
			continue
		}
		h.logger.Warn().Str("conn_id", c.ID()).Str("event_type", string(event.Type)).
			Msg("Connection cannot keep up, dropping it")
		h.Unregister(c)
	}
}

// count prefers the shared presence store and falls back to the local count.
func (h *Hub) count(auctionID uuid.UUID, local int) int {
	if h.presence == nil {
		return local
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	n, err := h.presence.Count(ctx, auctionID)
	if err != nil {
		h.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Presence store unavailable, using local count")
		return local
	}
	return n
}

// presenceChanged records a join or leave in the presence store, announces it
// and returns the resulting count.
func (h *Hub) presenceChanged(auctionID uuid.UUID, eventType outbound.EventType, userID uuid.UUID, local int) int {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	count := local
	if h.presence != nil {
		var (
			n   int
			err error
		)
		if eventType == outbound.EventTypeParticipantJoined {
			n, err = h.presence.Join(ctx, auctionID, userID)
		} else {
			n, err = h.presence.Leave(ctx, auctionID, userID)
		}
		if err != nil {
			h.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Presence store unavailable, using local count")
		} else {
			count = n
		}
	}

	h.mu.RLock()
	out := h.presenceOut
	h.mu.RUnlock()

	err := out.Publish(ctx, auctionID, outbound.Event{
		ID:        h.ids.Next(),
		Type:      eventType,
		AuctionID: auctionID,
		Data: map[string]interface{}{
			"user_id": userID,
			"count":   count,
		},
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to announce presence change")
	}
	return count
}

// Collect drops rooms in which nothing has happened for longer than the room
// TTL and returns how many were removed. Members of a collected room stay
// connected but no longer receive its events.
func (h *Hub) Collect() int {
	cutoff := h.now().Add(-h.roomTTL)

	h.mu.Lock()
	type eviction struct {
		auctionID uuid.UUID
		users     []uuid.UUID
	}
	var evicted []eviction
	for auctionID, r := range h.rooms {
		if !r.lastActivity.Before(cutoff) {
			continue
		}
		ev := eviction{auctionID: auctionID}
		for id := range r.members {
			delete(h.joined[id], auctionID)
		}
		for userID := range r.users {
			ev.users = append(ev.users, userID)
		}
		delete(h.rooms, auctionID)
		evicted = append(evicted, ev)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		for _, ev := range evicted {
			for _, userID := range ev.users {
				if _, err := h.presence.Leave(ctx, ev.auctionID, userID); err != nil {
					h.logger.Warn().Err(err).Str("auction_id", ev.auctionID.String()).Msg("Failed to release presence")
				}
			}
		}
	}
	if len(evicted) > 0 {
		h.logger.Debug().Int("removed", len(evicted)).Int("rooms", rooms).Msg("Collected idle rooms")
	}
	return len(evicted)
}

// Run collects idle rooms until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	interval := defaultGCInterval
	if h.roomTTL < interval {
		interval = h.roomTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Collect()
		case <-ctx.Done():
			return
		}
	}
}
