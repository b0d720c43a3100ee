package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EmailVerified = "user.email_verified"
	NameVerified  = "user.name_verified"
	UserCreated   = "user.created"
)

type Event struct {
	Type   string            `json:"type"`
	UserID string            `json:"user_id"`
	Email  string            `json:"email,omitempty"`
	At     time.Time         `json:"at"`
	Data   map[string]string `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON keyed by user id, so one user's events
// stay ordered on a single partition.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Kafka{writer: w, topic: topic, logger: logger.Named("events")}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(e.UserID),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		k.logger.Error("Failed to write event to Kafka",
			zap.String("type", e.Type),
			zap.String("user_id", e.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
