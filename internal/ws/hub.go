package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

const writeTimeout = 5 * time.Second

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks live connections per user and pushes events to them.
type Hub struct {
	users map[int64]map[*websocket.Conn]*client
	mu    sync.RWMutex
	log   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		users: make(map[int64]map[*websocket.Conn]*client),
		log:   log,
	}
}

// AddClient registers a connection for a user.
func (h *Hub) AddClient(userID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*websocket.Conn]*client)
	}
	h.users[userID][conn] = &client{conn: conn, info: info}
}

// RemoveClient drops a connection.
func (h *Hub) RemoveClient(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
}

// Online reports whether the user has at least one connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// SendToUser writes the event to every connection of the user. A user with
// no connection is a no-op. Broken connections are closed and dropped.
func (h *Hub) SendToUser(ctx context.Context, userID int64, event string, payload any) error {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return nil
	}

	body, err := json.Marshal(models.PushEnvelope{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	var firstErr error
	for _, c := range conns {
		if err := c.write(body); err != nil {
			h.log.Warn("websocket write error", zap.Int64("user_id", userID), zap.String("conn_id", c.info.ConnID), zap.Error(err))
			if c.conn != nil {
				c.conn.Close()
			}
			h.RemoveClient(userID, c.conn)
			h.publishWSEvent(ctx, "ws_error", c.info, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *Hub) publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	var duration int64
	if !info.ConnectedAt.IsZero() && event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Headers:   observability.BuildHeaders(info.RequestID, info.TraceID),
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        wsKind,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	})
	observability.IncWSEvent(wsKind, event)
}

const (
	wsKind       = "user"
	wsRoutingKey = "ws_events.users"
)
