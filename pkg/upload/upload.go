package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/kafka"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/store"
)

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Pending is one payload waiting for a retry. The event id is fixed when the
// payload is first sent and reused on every retry.
type Pending struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

// Client sends responses and page visits. Sends never fail from the caller's
// point of view: a failed publish is appended to a local queue instead.
type Client struct {
	responses Publisher
	logs      Publisher
	kv        store.Store

	mu sync.Mutex
}

func NewClient(responses, logs Publisher, kv store.Store) *Client {
	return &Client{responses: responses, logs: logs, kv: kv}
}

func (c *Client) SendSurveyData(ctx context.Context, data models.SurveyData) {
	c.send(ctx, store.KeyPendingData, models.EventSurveyData, data)
}

func (c *Client) SendReactionTimes(ctx context.Context, data models.ReactionTimeData) {
	c.send(ctx, store.KeyPendingData, models.EventReactionTimes, data)
}

func (c *Client) LogPageVisit(ctx context.Context, event models.LogEvent) {
	c.send(ctx, store.KeyPendingLog, models.EventPageVisit, event)
}

func (c *Client) publisher(queue string) Publisher {
	if queue == store.KeyPendingLog {
		return c.logs
	}
	return c.responses
}

func (c *Client) send(ctx context.Context, queue, eventType string, payload interface{}) {
	data, err := toMap(payload)
	if err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Error("Dropping unencodable payload")
		return
	}
	event := kafka.NewEvent(eventType, "", data)
	item := Pending{ID: event.ID, Type: eventType, Data: data, CreatedAt: event.Timestamp}

	if err := c.publish(ctx, queue, item); err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var pending []Pending
	if _, err := c.kv.Get(ctx, queue, &pending); err != nil {
		logger.Log.WithError(err).WithField("queue", queue).Error("Failed to read pending queue")
		return
	}
	pending = append(pending, item)
	if err := c.kv.Set(ctx, queue, pending); err != nil {
		logger.Log.WithError(err).WithField("queue", queue).Error("Failed to queue payload")
		return
	}
	metrics.IncUploadQueued()
}

func (c *Client) publish(ctx context.Context, queue string, item Pending) error {
	source, err := c.participant(ctx)
	if err != nil {
		return err
	}
	event := models.Event{
		ID:        item.ID,
		Type:      item.Type,
		Source:    source,
		Data:      item.Data,
		Timestamp: item.CreatedAt,
	}
	if err := c.publisher(queue).Publish(ctx, event); err != nil {
		return err
	}
	metrics.IncUploadPublished()
	return nil
}

func (c *Client) participant(ctx context.Context) (string, error) {
	var id string
	if _, err := c.kv.Get(ctx, store.KeyUUID, &id); err != nil {
		return "", err
	}
	return id, nil
}

// UploadPending retries every queued item of queue and keeps only the ones
// that failed again. It returns how many were delivered.
func (c *Client) UploadPending(ctx context.Context, queue string) (int, error) {
	if queue != store.KeyPendingData && queue != store.KeyPendingLog {
		return 0, fmt.Errorf("unknown upload queue %q", queue)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []Pending
	if _, err := c.kv.Get(ctx, queue, &pending); err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var failed []Pending
	for _, item := range pending {
		if item.ID == "" {
			fresh := kafka.NewEvent(item.Type, "", nil)
			item.ID, item.CreatedAt = fresh.ID, fresh.Timestamp
		}
		if err := c.publish(ctx, queue, item); err != nil {
			failed = append(failed, item)
		}
	}
	if len(failed) == 0 {
		if err := c.kv.Delete(ctx, queue); err != nil {
			return 0, err
		}
	} else if err := c.kv.Set(ctx, queue, failed); err != nil {
		return 0, err
	}

	delivered := len(pending) - len(failed)
	logger.WithFields(map[string]interface{}{
		"queue":     queue,
		"delivered": delivered,
		"remaining": len(failed),
	}).Info("Pending uploads retried")
	return delivered, nil
}

// Flush retries both queues.
func (c *Client) Flush(ctx context.Context) {
	for _, q := range []string{store.KeyPendingData, store.KeyPendingLog} {
		if _, err := c.UploadPending(ctx, q); err != nil {
			logger.Log.WithError(err).WithField("queue", q).Warn("Failed to retry pending uploads")
		}
	}
}

func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
