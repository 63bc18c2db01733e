package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
)

type Consumer struct {
	reader *kafka.Reader
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader}
}

// Consume blocks until ctx is cancelled. Messages whose handler fails are left
// uncommitted and come back after a rebalance or restart. Undecodable messages
// are committed and dropped.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			continue
		}

		event, err := Decode(message)
		if err != nil {
			logger.Log.WithError(err).WithField("topic", message.Topic).Error("Failed to unmarshal event")
			_ = c.reader.CommitMessages(ctx, message)
			continue
		}

		if err := handler(ctx, event); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).Error("Failed to process event")
			continue
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
