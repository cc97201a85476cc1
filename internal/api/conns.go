package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnRegistry tracks live event-stream websockets so they can be closed
// together on shutdown.
type ConnRegistry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{active: make(map[string]*websocket.Conn)}
}

// Register adds conn under id, closing any connection it replaces.
func (m *ConnRegistry) Register(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[id]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "stream replaced")
	}
	m.active[id] = conn
	slog.Info("Event stream registered", "stream_id", id)
}

// Unregister removes conn if it is still registered under id.
func (m *ConnRegistry) Unregister(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[id]; ok && current == conn {
		delete(m.active, id)
		slog.Info("Event stream unregistered", "stream_id", id)
	}
}

// Count returns the number of live streams.
func (m *ConnRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll terminates every live stream.
func (m *ConnRegistry) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, id)
	}
}
