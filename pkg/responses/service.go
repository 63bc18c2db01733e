package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
)

var ErrMissingParticipant = errors.New("event has no participant")

// Sink is the storage the service writes to. *Repository implements it.
type Sink interface {
	SaveSubmission(ctx context.Context, record *SubmissionRecord) error
	SavePageVisit(ctx context.Context, record *PageVisitRecord) error
	ListSubmissions(ctx context.Context, participant string, limit int) ([]SubmissionRecord, error)
	ListPageVisits(ctx context.Context, participant string, limit int) ([]PageVisitRecord, error)
}

type Service struct {
	sink Sink
	now  func() time.Time
}

func NewService(sink Sink) *Service {
	return &Service{sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// HandleEvent stores one upload event. Unknown event types are logged and
// skipped so the consumer commits them.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Source == "" {
		logger.WithField("event_id", event.ID).Warn("Dropping event without participant")
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var err error
	switch event.Type {
	case models.EventSurveyData, models.EventReactionTimes:
		err = s.sink.SaveSubmission(ctx, s.submission(event))
	case models.EventPageVisit:
		var record *PageVisitRecord
		if record, err = s.pageVisit(event); err != nil {
			logger.WithField("event_id", event.ID).WithError(err).Warn("Dropping undecodable page visit")
			return nil
		}
		err = s.sink.SavePageVisit(ctx, record)
	default:
		logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Warn("Skipping unknown event type")
		return nil
	}
	if err != nil {
		return fmt.Errorf("store %s: %w", event.Type, err)
	}

	metrics.IncSubmissionIngested()
	logger.WithFields(map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"participant": event.Source,
	}).Debug("Event stored")
	return nil
}

func (s *Service) submission(event models.Event) *SubmissionRecord {
	record := &SubmissionRecord{
		ID:          uuid.New(),
		EventID:     event.ID,
		Participant: event.Source,
		Kind:        event.Type,
		ModuleIndex: -1,
		Payload:     event.Data,
		SentAt:      event.Timestamp,
		ReceivedAt:  s.now(),
	}
	if index, ok := event.Data["module_index"].(float64); ok {
		record.ModuleIndex = int(index)
	}
	if name, ok := event.Data["module_name"].(string); ok {
		record.ModuleName = name
	}
	if event.Type == models.EventReactionTimes {
		if name, ok := event.Data["name"].(string); ok {
			record.ModuleName = name
		}
	}
	return record
}

func (s *Service) pageVisit(event models.Event) (*PageVisitRecord, error) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	var visit models.LogEvent
	if err := json.Unmarshal(raw, &visit); err != nil {
		return nil, err
	}
	if visit.Page == "" || visit.Event == "" {
		return nil, errors.New("page and event are required")
	}

	visitedAt := time.UnixMilli(visit.Milliseconds).UTC()
	if visit.Milliseconds == 0 {
		visitedAt = event.Timestamp
	}
	return &PageVisitRecord{
		ID:          uuid.New(),
		EventID:     event.ID,
		Participant: event.Source,
		Page:        visit.Page,
		Event:       visit.Event,
		ModuleIndex: visit.ModuleIndex,
		VisitedAt:   visitedAt,
	}, nil
}

func (s *Service) Submissions(ctx context.Context, participant string, limit int) ([]SubmissionRecord, error) {
	if participant == "" {
		return nil, ErrMissingParticipant
	}
	return s.sink.ListSubmissions(ctx, participant, limit)
}

func (s *Service) PageVisits(ctx context.Context, participant string, limit int) ([]PageVisitRecord, error) {
	if participant == "" {
		return nil, ErrMissingParticipant
	}
	return s.sink.ListPageVisits(ctx, participant, limit)
}
