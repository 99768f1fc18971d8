package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn represents a single WebSocket connection.
type Conn struct {
	ID          string
	WS          *websocket.Conn
	ConnectedAt time.Time

	writeMu sync.Mutex
	seq     int64
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ID:          "conn_" + uuid.NewString(),
		WS:          ws,
		ConnectedAt: time.Now(),
	}
}

// Emit writes one event frame (thread-safe). It satisfies relay.Emitter.
func (c *Conn) Emit(event string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.seq++
	frame, err := EventFrame(event, c.seq, payload)
	if err != nil {
		return err
	}
	c.WS.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WS.WriteJSON(frame)
}

// Close sends a close frame and closes the socket.
func (c *Conn) Close(code int, reason string) {
	c.writeMu.Lock()
	c.WS.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.WS.Close()
}

// ConnManager tracks all active WebSocket connections.
type ConnManager struct {
	mu    sync.RWMutex
	conns map[string]*Conn // connID → conn
}

func NewConnManager() *ConnManager {
	return &ConnManager{conns: make(map[string]*Conn)}
}

// Add registers a new connection.
func (m *ConnManager) Add(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID] = conn
}

// Remove unregisters a connection.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

// Count returns the number of connected clients.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CloseAll closes every connection, e.g. on shutdown. Hijacked sockets are not
// tracked by http.Server.Shutdown.
func (m *ConnManager) CloseAll(reason string) {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		slog.Debug("closing connection", "id", c.ID)
		c.Close(websocket.CloseGoingAway, reason)
	}
}
