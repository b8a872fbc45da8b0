package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	skafka "github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer we need, so the publisher is testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher pushes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish keys messages by aggregate id so one aggregate's events stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	msg := skafka.Message{
		Key:   []byte(env.AggregateID.String()),
		Value: b,
		Headers: []skafka.Header{
			{Key: "event-type", Value: []byte(env.EventType)},
			{Key: "event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
			{Key: "organization-id", Value: []byte(env.OrganizationID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka write %s: %w", env.EventID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
