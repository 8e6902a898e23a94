package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicCRMEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Topic возвращает topic публикации.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

// Publish отправляет событие; ключ партиционирования - id агрегата,
// поэтому события одной сущности сохраняют порядок.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishEvent(ctx, p.topic, key, NewEnvelope(event, time.Now()), envelopeHeaders(event)...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
