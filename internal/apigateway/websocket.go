package apigateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const pongWait = 60 * time.Second

// upgrader is used to upgrade an HTTP connection to a persistent WebSocket connection.
var upgrader = websocket.Upgrader{
	// Allow connections from any origin (for development).
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebsocketHandler registers authenticated players so server events can be
// pushed to them.
type WebsocketHandler struct {
	verifier *TokenVerifier
	cm       *ConnectionManager
}

func NewWebsocketHandler(verifier *TokenVerifier, cm *ConnectionManager) *WebsocketHandler {
	return &WebsocketHandler{verifier: verifier, cm: cm}
}

// ServeHTTP authenticates the request, upgrades it and keeps the socket
// registered until the client goes away.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	playerID := claims.PlayerID()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	slog.Info("WebSocket connection established", "playerID", playerID)

	h.cm.Add(playerID, conn)
	h.handleConnection(conn, playerID)
}

// handleConnection runs the read pump, which only exists to notice when the
// client closes the connection.
func (h *WebsocketHandler) handleConnection(conn *websocket.Conn, playerID string) {
	defer func() {
		slog.Info("Closing WebSocket connection", "playerID", playerID)
		h.cm.Remove(playerID, conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket connection closed unexpectedly", "playerID", playerID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
