package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	authcore "github.com/shahdco/authcore"
)

// KafkaConfig defines a public type used by authcore APIs.
//
// KafkaConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaPublisher defines a public type used by authcore APIs.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher describes the newkafkapublisher operation and its observable behavior.
//
// NewKafkaPublisher returns derived values or handles for continued use when successful.
// NewKafkaPublisher may return an error when input validation, dependency calls, or security checks fail.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("eventbus: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("eventbus: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Publish describes the publish operation and its observable behavior.
//
// Publish may return an error when input validation, dependency calls, or security checks fail.
// Publish does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *KafkaPublisher) Publish(ctx context.Context, event authcore.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: encode event: %w", err)
	}

	// Keying by event type gives consumers per-type ordering.
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
	})
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
