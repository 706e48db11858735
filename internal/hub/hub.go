package hub

import "sync"

// Connection is one live client connection. Send must not block; a
// connection that cannot accept writes reports an error and is dropped
// by its transport.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Hub is the process-wide connection registry. Room membership is owned
// by the room store; the hub only resolves connection IDs to transports
// for fan-out.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		conns: make(map[string]Connection),
	}
}

// Register adds a connection.
func (h *Hub) Register(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

// Unregister removes a connection. No-op if absent.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
}

// Get returns the connection for an ID.
func (h *Hub) Get(connID string) (Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connID]
	return conn, ok
}

// Send delivers data to a single connection. Returns false if the
// connection is unknown or its send buffer is full.
func (h *Hub) Send(connID string, data []byte) bool {
	conn, ok := h.Get(connID)
	if !ok {
		return false
	}
	return conn.Send(data) == nil
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
