package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes events to a Kafka topic. Writes are acknowledged by
// the partition leader and retried with linear backoff before giving up.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink for the given brokers (comma-separated) and
// topic.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Deliver publishes one event, keyed by thread so per-thread ordering is
// preserved within a partition.
func (s *KafkaSink) Deliver(ctx context.Context, event AgentEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.ThreadID),
		Value: value,
		Time:  event.Timestamp,
	}

	var writeErr error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		writeErr = s.writer.WriteMessages(ctx, msg)
		if writeErr == nil {
			return nil
		}
	}
	return fmt.Errorf("kafka write failed: %w", writeErr)
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
