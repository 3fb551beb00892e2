package gateway

import (
	"encoding/json"
	"strings"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

type inboundChatMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

func (h *Hub) registerNamespaces() {
	chatNS := h.sio.Of(namespaceChat, nil)
	_ = chatNS.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		sid := string(client.Id())

		userID := ""
		if token := normalizeToken(extractToken(client)); token != "" && h.tokenValidator != nil {
			if uid, err := h.tokenValidator(token); err == nil {
				userID = uid
			}
		}

		h.register <- clientMeta{sid: sid, userID: userID}
		_ = client.Emit("message", h.gatewayMessageFormat("GATEWAY_CONNECT", "WebSocket connected", nil))

		_ = client.On("message", func(eventArgs ...any) {
			msg, ok := parseInboundChatMessage(eventArgs...)
			if !ok {
				return
			}

			switch msg.Type {
			case messageJoin:
				roomID := firstNonEmptyString(
					strFromAny(msg.Payload["roomId"]),
					strFromAny(msg.Payload["room_id"]),
				)
				if roomID == "" {
					return
				}
				client.Join(socketio.Room(roomID))
				h.joinRoom(sid, roomID)
			case messageLeave:
				roomID := firstNonEmptyString(
					strFromAny(msg.Payload["roomId"]),
					strFromAny(msg.Payload["room_id"]),
				)
				if roomID == "" {
					return
				}
				client.Leave(socketio.Room(roomID))
				h.leaveRoom(sid, roomID)
			}
		})

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, userID: userID}
		})
	})

	adminNS := h.sio.Of(namespaceAdmin, nil)
	_ = adminNS.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(client))
		if token == "" || h.tokenValidator == nil {
			_ = client.Emit("message", h.gatewayMessageFormat("AUTH_FAILED", "auth failed", nil))
			client.Disconnect(true)
			return
		}
		if _, err := h.tokenValidator(token); err != nil {
			_ = client.Emit("message", h.gatewayMessageFormat("AUTH_FAILED", "auth failed", nil))
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		h.register <- clientMeta{sid: sid}
		_ = client.Emit("message", h.gatewayMessageFormat("GATEWAY_CONNECT", "WebSocket connected", nil))

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid}
		})
	})
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func parseInboundChatMessage(args ...any) (inboundChatMessage, bool) {
	if len(args) == 0 || args[0] == nil {
		return inboundChatMessage{}, false
	}

	var msg inboundChatMessage
	switch raw := args[0].(type) {
	case inboundChatMessage:
		msg = raw
	case map[string]interface{}:
		msg.Type = strFromAny(raw["type"])
		msg.Payload = mapFromAny(raw["payload"])
	case string:
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return inboundChatMessage{}, false
		}
	case []byte:
		if err := json.Unmarshal(raw, &msg); err != nil {
			return inboundChatMessage{}, false
		}
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return inboundChatMessage{}, false
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return inboundChatMessage{}, false
		}
	}

	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return inboundChatMessage{}, false
	}
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return msg, true
}

func mapFromAny(v interface{}) map[string]interface{} {
	switch typed := v.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return map[string]interface{}{}
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
}

func strFromAny(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
