package gateway

import (
	"sync"

	pkgredis "github.com/dialect-so/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceChat  = "/chat"
	namespaceAdmin = "/admin"

	redisChanEvents = "dl:gateway:events"

	messageJoin  = "join"
	messageLeave = "leave"
)

// Events emitted by the content pipeline. Every payload carries the id of
// the entity it concerns so clients can re-fetch or patch local state.
const (
	EventMessageCreate        = "MESSAGE_CREATE"
	EventContentUpdated       = "CONTENT_UPDATED"
	EventScrapedChunkStored   = "SCRAPED_CHUNK_STORED"
	EventSummaryStatusUpdated = "SUMMARY_STATUS_UPDATED"
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Code    *int        `json:"code,omitempty"`
	Room    string      `json:"room,omitempty"`
	Origin  string      `json:"origin,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Code *int        `json:"code,omitempty"`
}

type clientMeta struct {
	sid    string
	userID string
}

// Broadcaster delivers entity-keyed change events to connected clients.
// *Hub is the production implementation.
type Broadcaster interface {
	BroadcastRoom(room, event string, payload interface{})
	Broadcast(event string, payload interface{})
}

// Hub manages socket.io namespaces and cluster fan-out. Broadcasts flow
// through a single channel, so events for the same entity reach clients in
// the order they were committed.
type Hub struct {
	mu sync.RWMutex

	sidRooms  map[string]map[string]struct{}
	roomCount map[string]int

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	instanceID     string
	rc             *pkgredis.Client
	logger         *zap.Logger
	sio            *socketio.Server
	tokenValidator func(string) (string, error)
}
