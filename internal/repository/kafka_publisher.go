package repository

import (
	"context"

	"PriceMesh/internal/domain/models"
	"PriceMesh/internal/domain/repository"
	pkgkafka "PriceMesh/pkg/kafka"
)

// KafkaPublisher emits accepted submissions to the audit topic. Messages are
// keyed by asset so per-asset ordering survives partitioning.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates the audit topic publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e *models.FeedEntry) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.Asset), entryPayload(e))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, entries []*models.FeedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(e.Asset),
			Value: entryPayload(e),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func entryPayload(e *models.FeedEntry) map[string]interface{} {
	return map[string]interface{}{
		"asset":    e.Asset,
		"reporter": e.Reporter,
		"t":        e.Timestamp,
		"price":    e.Price,
		"volume":   e.Volume,
		"weight":   e.Weight,
		"verified": e.Verified,
	}
}
