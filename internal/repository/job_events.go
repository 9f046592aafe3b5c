package repository

import (
	"context"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
)

type eventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaJobEvents publishes job transitions to a Kafka topic keyed by job id, so the
// events of one job stay ordered on a single partition.
type KafkaJobEvents struct {
	producer eventPublisher
	topic    string
}

func NewKafkaJobEvents(producer eventPublisher, topic string) *KafkaJobEvents {
	return &KafkaJobEvents{producer: producer, topic: topic}
}

var _ domrepo.JobEvents = (*KafkaJobEvents)(nil)

func (e *KafkaJobEvents) Publish(ctx context.Context, ev models.JobEvent) error {
	return e.producer.Publish(ctx, e.topic, []byte(ev.JobID), ev)
}

func (e *KafkaJobEvents) Close() error {
	return e.producer.Close()
}

// NopJobEvents drops every event. Used when Kafka is disabled.
type NopJobEvents struct{}

var _ domrepo.JobEvents = NopJobEvents{}

func (NopJobEvents) Publish(context.Context, models.JobEvent) error { return nil }
func (NopJobEvents) Close() error                                   { return nil }
