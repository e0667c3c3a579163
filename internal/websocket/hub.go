package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"codeassist-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notice is a small out-of-band message pushed to connected clients,
// e.g. "a generation finished" or "this session was renamed". Token
// streaming itself stays on the SSE channel; the hub only carries
// state-change pokes.
type Notice struct {
	Kind      string                 `json:"kind"`
	SessionId uuid.UUID              `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}

const (
	NoticeGenerationDone = "generation_done"
	NoticeSessionRenamed = "session_renamed"
)

type Hub struct {
	// UserID -> connected clients (multi-device)
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out. Nil disables it.
	rdb *redis.Client

	// Identifies this instance on the cluster channel so it can skip
	// its own publishes; local delivery already happened in Send.
	instanceId string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		instanceId: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.UserID]) == 0 {
					delete(h.clients, client.UserID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers a notice to every connection the user has, locally and
// via redis on other instances.
func (h *Hub) Send(userID uuid.UUID, notice Notice) {
	data, _ := json.Marshal(map[string]interface{}{
		"type": "notice",
		"data": notice,
	})

	h.deliverLocal(userID, data)

	// Another instance may hold connections for the same user.
	if h.rdb != nil {
		payload := map[string]interface{}{
			"origin":         h.instanceId,
			"target_user_id": userID.String(),
			"message":        json.RawMessage(data),
		}
		jsonPayload, _ := json.Marshal(payload)
		h.rdb.Publish(context.Background(), "cluster_events", jsonPayload)
	}
}

// deliverLocal fans out to the user's local connections. The read lock
// stays held across the channel sends, so Run cannot close a Send
// channel mid-delivery; clients with a full buffer are unregistered
// after the lock is released.
func (h *Hub) deliverLocal(userID uuid.UUID, data []byte) {
	var dropped []*Client

	h.mu.RLock()
	for _, client := range h.clients[userID] {
		select {
		case client.Send <- data:
		default:
			dropped = append(dropped, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range dropped {
		h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"user_id": userID})
		h.unregister <- client
	}
}

func (h *Hub) subscribeToRedis() {
	// All instances subscribe to the same channel and deliver only to
	// users they hold locally.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "cluster_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var payload struct {
			Origin       string          `json:"origin"`
			TargetUserID string          `json:"target_user_id"`
			Message      json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}

		// Our own publish; Send already covered the local clients.
		if payload.Origin == h.instanceId {
			continue
		}

		uid, err := uuid.Parse(payload.TargetUserID)
		if err != nil {
			continue
		}

		h.deliverLocal(uid, payload.Message)
	}
}
