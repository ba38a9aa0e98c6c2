// Package kafka provides an optional firehose of tracking events for
// downstream consumers (analytics, notification pipelines) that must not sit
// on the hot fan-out path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
)

// Producer writes TrackingEvents to Kafka, keyed by delivery id so one
// delivery's events stay on one partition, preserving their order.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for the given topic.
func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: w}
}

// Publish sends one tracking event to Kafka.
func (p *Producer) Publish(ctx context.Context, ev domain.TrackingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.DeliveryID),
		Value: data,
	})
}

// Close flushes pending messages and closes the connection.
func (p *Producer) Close() error {
	return p.writer.Close()
}
