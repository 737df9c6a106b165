package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// Config describes one topic binding.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// Async trades delivery errors for throughput on the producer side.
	Async bool
}

// ConfigFromViper reads kafka.brokers and kafka.consumer_group_id, binding to
// the topic stored under topicKey.
func ConfigFromViper(v *viper.Viper, topicKey string) Config {
	return Config{
		Brokers: v.GetStringSlice("kafka.brokers"),
		Topic:   v.GetString(topicKey),
		GroupID: v.GetString("kafka.consumer_group_id"),
		Async:   v.GetBool("kafka.async_writes"),
	}
}

// NewConsumer initializes and returns a new Kafka reader (consumer).
func NewConsumer(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID, // Consumers in the same group share the load.
		MinBytes:       1,           // server-ready events are small and latency matters
		MaxBytes:       10e6,        // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})
}
