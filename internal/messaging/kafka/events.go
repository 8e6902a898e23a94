package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// Topics для Kafka
const (
	TopicCRMEvents       = "crm.events"
	TopicDeadLetterQueue = "crm.events.dlq"
)

// Kafka headers событий CRM
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope - формат события CRM в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение. Невалидный JSON в payload
// заменяется на null, чтобы не сломать сериализацию конверта.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   now.UTC(),
	}
}

func envelopeHeaders(msg domain.OutboxMessage) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(msg.EventType)},
		{Key: []byte(HeaderAggregateType), Value: []byte(msg.AggregateType)},
		{Key: []byte(HeaderOutboxID), Value: []byte(msg.ID)},
	}
}
