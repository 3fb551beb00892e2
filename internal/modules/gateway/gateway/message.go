package gateway

import (
	"context"
	"encoding/json"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

func (h *Hub) gatewayMessageFormat(event string, payload interface{}, code *int) gatewayPayload {
	return gatewayPayload{
		Type: event,
		Data: payload,
		Code: code,
	}
}

func (h *Hub) deliver(msg Message) {
	body := h.gatewayMessageFormat(msg.Event, msg.Payload, msg.Code)

	chatNS := h.sio.Of(namespaceChat, nil)
	if msg.Room != "" {
		chatNS.To(socketio.Room(msg.Room)).Emit("message", body)
	} else {
		chatNS.Emit("message", body)
	}

	// admin clients observe the full event stream
	h.sio.Of(namespaceAdmin, nil).Emit("message", body)
}

// subscribeRedis listens for broadcasts from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			if msg.Origin == h.instanceID {
				continue
			}
			h.deliver(msg)
		}
	}
}
