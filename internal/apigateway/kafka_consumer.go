package apigateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/cheildo/nexus-clash-connect/internal/orchestration"
)

// Notification types pushed to players.
const (
	TypeServerReady  = "SERVER_READY"
	TypeServerFailed = "SERVER_FAILED"
)

// MessageReader is the subset of *kafka.Reader the consumer reads from.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ServerNotification is the message a player receives once their match has
// a server, or once acquiring one has failed.
type ServerNotification struct {
	Type    string `json:"type"`
	MatchID string `json:"matchID"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	Region  string `json:"region,omitempty"`
	Error   string `json:"error,omitempty"`
}

func notificationFor(event orchestration.GameServerReadyEvent) ServerNotification {
	if event.Status != orchestration.StatusReady {
		return ServerNotification{Type: TypeServerFailed, MatchID: event.MatchID, Error: event.Error}
	}
	return ServerNotification{
		Type:    TypeServerReady,
		MatchID: event.MatchID,
		Address: event.ServerAddr,
		Port:    event.ServerPort,
		Region:  event.Region,
	}
}

// ServerReadyConsumer relays game_server_ready events to connected players.
type ServerReadyConsumer struct {
	reader MessageReader
	cm     *ConnectionManager
}

func NewServerReadyConsumer(reader MessageReader, cm *ConnectionManager) *ServerReadyConsumer {
	return &ServerReadyConsumer{
		reader: reader,
		cm:     cm,
	}
}

// Run starts the consumer loop. It should be run in a goroutine.
func (sc *ServerReadyConsumer) Run(ctx context.Context) {
	slog.Info("Kafka consumer loop started")
	defer sc.reader.Close()

	for {
		msg, err := sc.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer context cancelled. Shutting down.")
				break
			}
			slog.Error("Error reading from Kafka", "error", err)
			continue
		}

		var event orchestration.GameServerReadyEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("Failed to unmarshal game_server_ready event", "error", err)
			continue
		}
		sc.notify(event)
	}
	slog.Info("Kafka consumer stopped.")
}

// notify sends the event to every player in the match that is connected.
func (sc *ServerReadyConsumer) notify(event orchestration.GameServerReadyEvent) {
	notification := notificationFor(event)
	for _, playerID := range event.PlayerIDs {
		if err := sc.cm.Send(playerID, notification); err != nil {
			slog.Warn("Failed to notify player", "playerID", playerID, "matchID", event.MatchID, "type", notification.Type, "error", err)
			continue
		}
		slog.Info("Notified player", "playerID", playerID, "matchID", event.MatchID, "type", notification.Type)
	}
}
