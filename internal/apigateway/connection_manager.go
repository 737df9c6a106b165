package apigateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("player has no active connection")

const writeWait = 10 * time.Second

// client serializes writes to one socket.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// ConnectionManager safely stores and retrieves active WebSocket connections.
type ConnectionManager struct {
	connections sync.Map // A thread-safe map: map[playerID]*client
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

// Add registers conn for playerID, replacing any older socket.
func (cm *ConnectionManager) Add(playerID string, conn *websocket.Conn) {
	if old, loaded := cm.connections.Swap(playerID, &client{conn: conn}); loaded {
		old.(*client).conn.Close()
	}
}

// Remove drops conn, leaving a newer socket for the same player in place.
func (cm *ConnectionManager) Remove(playerID string, conn *websocket.Conn) {
	if c, ok := cm.connections.Load(playerID); ok && c.(*client).conn == conn {
		cm.connections.CompareAndDelete(playerID, c)
	}
}

func (cm *ConnectionManager) Get(playerID string) (*websocket.Conn, bool) {
	c, ok := cm.connections.Load(playerID)
	if !ok {
		return nil, false
	}
	return c.(*client).conn, true
}

// Send writes v as JSON to the player's socket.
func (cm *ConnectionManager) Send(playerID string, v interface{}) error {
	value, ok := cm.connections.Load(playerID)
	if !ok {
		return ErrNotConnected
	}
	c := value.(*client)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Count reports the number of connected players.
func (cm *ConnectionManager) Count() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
