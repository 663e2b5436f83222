package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EngagementPublisher publishes engagement events to Kafka. Messages are
// keyed by campaign so counters for one campaign fold in order.
type EngagementPublisher struct {
	writer *kafka.Writer
}

// NewEngagementPublisher constructs a publisher for the given topic.
func NewEngagementPublisher(k *Kafka, topic string) *EngagementPublisher {
	return &EngagementPublisher{writer: k.NewWriter(topic)}
}

// Publish emits an engagement message to Kafka.
func (p *EngagementPublisher) Publish(ctx context.Context, msg EngagementMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("engagement publisher: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   msg.CampaignID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("engagement publisher: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *EngagementPublisher) Close() error {
	return p.writer.Close()
}
