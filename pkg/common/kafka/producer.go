package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
)

const publishTimeout = 10 * time.Second

// Producer writes upload events to one topic. Messages are keyed by
// participant so one device's uploads stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

// Publish writes the event as is and waits for the broker ack. The event id
// is kept, so a retried event is recognised downstream as the same one. The
// error is returned to the caller, which queues the event for retry.
func (p *Producer) Publish(ctx context.Context, event models.Event) error {
	message, err := Encode(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	log := logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"topic":      p.writer.Topic,
	})
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		log.WithError(err).Warn("Failed to publish event")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	log.Debug("Event published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NewEvent builds an envelope with a fresh id.
func NewEvent(eventType, source string, data map[string]interface{}) models.Event {
	return models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Encode turns an event into the wire message read back by Decode.
func Encode(event models.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Source),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "participant", Value: []byte(event.Source)},
		},
	}, nil
}

// Decode reads an event, falling back to the message key and headers for
// envelopes written without a source or type.
func Decode(message kafka.Message) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return models.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Source == "" {
		event.Source = string(message.Key)
	}
	for _, h := range message.Headers {
		switch {
		case h.Key == "event-type" && event.Type == "":
			event.Type = string(h.Value)
		case h.Key == "event-id" && event.ID == "":
			event.ID = string(h.Value)
		}
	}
	return event, nil
}
