package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// LeadPublisher publishes lead-captured events.
type LeadPublisher struct {
	writer *kafka.Writer
}

// NewLeadPublisher constructs a lead publisher for the given topic.
func NewLeadPublisher(k *Kafka, topic string) *LeadPublisher {
	return &LeadPublisher{writer: k.NewWriter(topic)}
}

// Publish emits a lead message to Kafka.
func (p *LeadPublisher) Publish(ctx context.Context, msg LeadCapturedMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("lead publisher: marshal message: %w", err)
	}
	record := kafka.Message{
		Key:   msg.LeadID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("lead publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *LeadPublisher) Close() error {
	return p.writer.Close()
}
