package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/patabima/pricing-engine/internal/metrics"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a single topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewKafkaPublisher creates an asynchronous producer for topic. Delivery
// failures surface through the writer's completion callback and are logged
// and counted, never returned to the caller.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	log = log.With().Str("component", "events").Str("topic", topic).Logger()
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Snappy,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		MaxAttempts:            3,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				metrics.EventsPublishFailures.Add(float64(len(msgs)))
				log.Warn().Err(err).Int("count", len(msgs)).Msg("quote events not delivered")
			}
		},
	}
	log.Info().Strs("brokers", brokers).Msg("kafka publisher created")
	return newKafkaPublisher(w, topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
		Time: evt.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublishFailures.Inc()
		p.log.Error().Err(err).Str("type", evt.Type).Str("key", evt.Key).Msg("failed to publish event")
		return err
	}
	p.log.Debug().Str("type", evt.Type).Str("key", evt.Key).Msg("event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
