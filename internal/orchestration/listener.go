package orchestration

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/kafka-go"

	"github.com/cheildo/nexus-clash-connect/internal/acquisition"
)

// MessageReader is the subset of *kafka.Reader the listener consumes from.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the listener publishes with.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ServerProvisioner acquires a server for a match.
type ServerProvisioner interface {
	Provision(ctx context.Context, matchID string) (acquisition.ServerHandle, error)
}

// Listener is the main component that listens to Kafka and orchestrates games.
type Listener struct {
	consumer       MessageReader
	producer       MessageWriter
	provisioner    ServerProvisioner
	pool           *ants.Pool
	runningServers *atomic.Int64 // Safely count in-flight acquisitions
}

func NewListener(consumer MessageReader, producer MessageWriter, provisioner ServerProvisioner, pool *ants.Pool) *Listener {
	return &Listener{
		consumer:       consumer,
		producer:       producer,
		provisioner:    provisioner,
		pool:           pool,
		runningServers: &atomic.Int64{},
	}
}

// Run starts the Kafka consumer loop. It should be run in a goroutine.
func (l *Listener) Run(ctx context.Context) {
	slog.Info("Orchestration listener started")
	defer l.consumer.Close()

	// In-flight acquisitions outlive ctx so a shutdown can drain them.
	workCtx := context.WithoutCancel(ctx)

	for {
		msg, err := l.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break // Context cancelled, graceful shutdown.
			}
			slog.Error("Error reading from Kafka", "error", err)
			continue
		}

		var event MatchFoundEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("Failed to unmarshal match_found event", "error", err)
			continue
		}
		if event.MatchID == "" {
			slog.Warn("Ignoring match_found event without matchID")
			continue
		}

		// Submit blocks while every pool worker is busy.
		l.runningServers.Add(1)
		if err := l.pool.Submit(func() { l.provisionGameServer(workCtx, event) }); err != nil {
			l.runningServers.Add(-1)
			slog.Error("Failed to schedule provisioning", "matchID", event.MatchID, "error", err)
		}
	}
	slog.Info("Orchestration listener stopped.")
}

// provisionGameServer acquires a server for the match and publishes the result.
func (l *Listener) provisionGameServer(ctx context.Context, event MatchFoundEvent) {
	defer l.runningServers.Add(-1)
	slog.Info("Provisioning game server...", "matchID", event.MatchID, "players", len(event.PlayerIDs))

	readyEvent := GameServerReadyEvent{
		MatchID:   event.MatchID,
		PlayerIDs: event.PlayerIDs,
	}

	handle, err := l.provisioner.Provision(ctx, event.MatchID)
	if err != nil {
		slog.Error("Game server provisioning failed", "matchID", event.MatchID, "error", err)
		readyEvent.Status = StatusFailed
		readyEvent.Error = err.Error()
	} else {
		slog.Info("Game server provisioned successfully", "matchID", event.MatchID, "address", handle.String(), "region", handle.Region)
		readyEvent.Status = StatusReady
		readyEvent.ServerAddr = handle.IPv4Address
		readyEvent.ServerPort = handle.Port
		readyEvent.Region = handle.Region
		readyEvent.SessionID = handle.SessionID
	}

	eventBytes, err := json.Marshal(readyEvent)
	if err != nil {
		slog.Error("Failed to marshal game_server_ready event", "error", err)
		return
	}

	err = l.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.MatchID),
		Value: eventBytes,
	})
	if err != nil {
		slog.Error("Failed to publish game_server_ready event", "error", err)
	} else {
		slog.Info("Published game_server_ready event", "matchID", event.MatchID, "status", readyEvent.Status)
	}
}

// GetRunningServers reports how many acquisitions are in flight.
func (l *Listener) GetRunningServers() int64 {
	return l.runningServers.Load()
}

// Close stops the worker pool and closes the producer. Callers should wait
// for GetRunningServers to reach zero first.
func (l *Listener) Close() error {
	l.pool.Release()
	return l.producer.Close()
}
