package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	pkgredis "github.com/dialect-so/core/internal/pkg/redis"
	"github.com/google/uuid"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// NewHub creates a hub. tokenValidator resolves a raw token to a user id and
// is used for both chat-namespace identification and admin-namespace auth.
func NewHub(rc *pkgredis.Client, logger *zap.Logger, tokenValidator func(string) (string, error)) *Hub {
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sidRooms:       make(map[string]map[string]struct{}),
		roomCount:      make(map[string]int),
		broadcast:      make(chan Message, 256),
		register:       make(chan clientMeta, 256),
		unregister:     make(chan clientMeta, 256),
		instanceID:     uuid.New().String(),
		rc:             rc,
		logger:         logger,
		sio:            sio,
		tokenValidator: tokenValidator,
	}
	h.registerNamespaces()
	return h
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
			msg.Origin = h.instanceID
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := h.rc.Publish(ctx, redisChanEvents, string(data)); err != nil && h.logger != nil {
				h.logger.Warn("gateway publish failed", zap.Error(err))
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sidRooms[c.sid]; !ok {
		h.sidRooms[c.sid] = make(map[string]struct{})
	}
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.sidRooms[c.sid] {
		if h.roomCount[room] > 0 {
			h.roomCount[room]--
		}
		if h.roomCount[room] == 0 {
			delete(h.roomCount, room)
		}
	}
	delete(h.sidRooms, c.sid)
}

func (h *Hub) joinRoom(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.sidRooms[sid]
	if !ok {
		rooms = make(map[string]struct{})
		h.sidRooms[sid] = rooms
	}
	if _, joined := rooms[room]; joined {
		return
	}
	rooms[room] = struct{}{}
	h.roomCount[room]++
}

func (h *Hub) leaveRoom(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.sidRooms[sid]
	if !ok {
		return
	}
	if _, joined := rooms[room]; !joined {
		return
	}
	delete(rooms, room)
	if h.roomCount[room] > 0 {
		h.roomCount[room]--
	}
	if h.roomCount[room] == 0 {
		delete(h.roomCount, room)
	}
}

// Broadcast sends an event to every connected client on all instances.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.broadcast <- Message{Event: event, Payload: payload}
}

// BroadcastRoom sends an event to clients subscribed to the given chat room.
func (h *Hub) BroadcastRoom(room, event string, payload interface{}) {
	h.broadcast <- Message{Event: event, Payload: payload, Room: room}
}

// ClientCount returns the number of connected clients (optionally filtered by room).
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		return len(h.sidRooms)
	}
	return h.roomCount[room]
}

// RoomCount returns the number of chat rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomCount)
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
