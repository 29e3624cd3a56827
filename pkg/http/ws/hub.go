package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Upgrader handles WebSocket upgrades for display clients. Displays are
// read-only, so any origin may connect.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks display connections and fans messages out per scope.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection // conn_id -> connection
	scopes      map[string][]uuid.UUID    // scope -> []conn_id
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		scopes:      make(map[string][]uuid.UUID),
		logger:      logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a connection subscribed to scope and returns its id.
func (h *Hub) Register(scope string, conn *Connection) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	h.connections[id] = conn
	h.scopes[scope] = append(h.scopes[scope], id)
	h.logger.Info().Str("conn_id", id.String()).Str("scope", scope).Msg("connection registered")
	return id
}

// Unregister closes and removes a connection.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, exists := h.connections[id]; exists {
		conn.Close()
		delete(h.connections, id)
		h.logger.Info().Str("conn_id", id.String()).Msg("connection unregistered")
	}

	for scope, ids := range h.scopes {
		for i, cid := range ids {
			if cid == id {
				h.scopes[scope] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(h.scopes[scope]) == 0 {
			delete(h.scopes, scope)
		}
	}
}

// BroadcastToScope sends a message to every display watching scope.
func (h *Hub) BroadcastToScope(scope string, msg Message) error {
	h.mu.RLock()
	ids := append([]uuid.UUID(nil), h.scopes[scope]...)
	h.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := h.send(id, msg); err != nil && firstErr == nil {
			firstErr = err
			h.logger.Warn().Err(err).Str("conn_id", id.String()).Msg("broadcast_scope_send_failed")
		}
	}
	return firstErr
}

// Subscribers returns how many connections watch scope.
func (h *Hub) Subscribers(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

func (h *Hub) send(id uuid.UUID, msg Message) error {
	h.mu.RLock()
	conn, exists := h.connections[id]
	h.mu.RUnlock()

	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 256),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
	if c.conn != nil {
		c.conn.Close()
	}
}

// WritePump sends messages from the send queue.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump receives messages and calls the handler until the peer goes away.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Display connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
