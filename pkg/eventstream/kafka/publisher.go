// Package kafka publishes received device events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/saamerm/particle/pkg/eventstream"
	"github.com/saamerm/particle/pkg/logger"
)

const defaultBatchTimeout = 50 * time.Millisecond

// Writer is the subset of *kafka.Writer used by the Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string

	// Writer overrides the kafka-go writer built from Brokers and Topic.
	Writer Writer

	Logger *slog.Logger
}

// Publisher writes DeviceEventReceived envelopes as JSON messages keyed by
// device id, so events from one device land on one partition in order.
type Publisher struct {
	writer Writer
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	writer := cfg.Writer
	if writer == nil {
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("kafka publisher requires at least one broker")
		}
		if cfg.Topic == "" {
			return nil, errors.New("kafka publisher requires a topic")
		}

		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           defaultBatchTimeout,
			AllowAutoTopicCreation: true,
		}
	}

	return &Publisher{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger.OrNop(cfg.Logger),
	}, nil
}

// PublishEvent writes one message for event.
func (p *Publisher) PublishEvent(ctx context.Context, event *eventstream.DeviceEventReceived) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	msg, err := Message(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event %s to kafka: %w", event.EventID, err)
	}

	p.logger.Debug("event forwarded to kafka",
		"topic", p.topic,
		"event_id", event.EventID,
		"device_id", event.Event.DeviceID,
	)

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message encodes event as a Kafka message.
func Message(event *eventstream.DeviceEventReceived) (kafkago.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding event %s: %w", event.EventID, err)
	}

	return kafkago.Message{
		Key:   []byte(event.Event.DeviceID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, nil
}
