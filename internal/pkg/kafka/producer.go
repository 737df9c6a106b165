package kafka

import (
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// NewProducer initializes and returns a new Kafka writer (producer). Messages
// are keyed by match id, so the hash balancer keeps a match on one partition.
func NewProducer(cfg Config) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne, // Acknowledge after leader has written.
		Async:        cfg.Async,
	}
	if cfg.Async {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("Kafka async write failed", "topic", cfg.Topic, "messages", len(messages), "error", err)
			}
		}
	}
	return w
}
