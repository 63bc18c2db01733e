package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
)

type memorySink struct {
	submissions []SubmissionRecord
	visits      []PageVisitRecord
	err         error
}

func (m *memorySink) SaveSubmission(_ context.Context, r *SubmissionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.submissions = append(m.submissions, *r)
	return nil
}

func (m *memorySink) SavePageVisit(_ context.Context, r *PageVisitRecord) error {
	if m.err != nil {
		return m.err
	}
	m.visits = append(m.visits, *r)
	return nil
}

func (m *memorySink) ListSubmissions(_ context.Context, participant string, limit int) ([]SubmissionRecord, error) {
	var out []SubmissionRecord
	for _, r := range m.submissions {
		if r.Participant == participant && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memorySink) ListPageVisits(_ context.Context, participant string, limit int) ([]PageVisitRecord, error) {
	var out []PageVisitRecord
	for _, r := range m.visits {
		if r.Participant == participant && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

var sentAt = time.Date(2024, 3, 4, 18, 50, 0, 0, time.UTC)

func TestHandleSurveyData(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(sink)

	err := svc.HandleEvent(context.Background(), models.Event{
		ID:     "e-1",
		Type:   models.EventSurveyData,
		Source: "p-1",
		Data: map[string]interface{}{
			"module_index": float64(0),
			"module_name":  "Morning check-in",
			"responses":    map[string]interface{}{"q-slept": "true"},
		},
		Timestamp: sentAt,
	})
	require.NoError(t, err)
	require.Len(t, sink.submissions, 1)

	got := sink.submissions[0]
	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, "p-1", got.Participant)
	assert.Equal(t, 0, got.ModuleIndex)
	assert.Equal(t, "Morning check-in", got.ModuleName)
	assert.Equal(t, sentAt, got.SentAt)
	assert.Contains(t, got.Payload, "responses")
}

func TestHandleReactionTimes(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(sink)

	require.NoError(t, svc.HandleEvent(context.Background(), models.Event{
		ID:     "e-2",
		Type:   models.EventReactionTimes,
		Source: "p-1",
		Data:   map[string]interface{}{"name": "pvt", "entries": []interface{}{320.0, -1.0}},
	}))
	require.Len(t, sink.submissions, 1)
	assert.Equal(t, "pvt", sink.submissions[0].ModuleName)
	assert.Equal(t, -1, sink.submissions[0].ModuleIndex)
}

func TestHandlePageVisit(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(sink)

	visit := models.NewLogEvent(sentAt, models.PageSurvey, models.VisitSubmit, 2)
	raw, err := json.Marshal(visit)
	require.NoError(t, err)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))

	require.NoError(t, svc.HandleEvent(context.Background(), models.Event{ID: "e-3", Type: models.EventPageVisit, Source: "p-1", Data: data}))
	require.Len(t, sink.visits, 1)
	assert.Equal(t, models.PageSurvey, sink.visits[0].Page)
	assert.Equal(t, models.VisitSubmit, sink.visits[0].Event)
	assert.Equal(t, 2, sink.visits[0].ModuleIndex)
	assert.True(t, sentAt.Equal(sink.visits[0].VisitedAt))
}

func TestHandleEventSkips(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(sink)
	ctx := context.Background()

	assert.NoError(t, svc.HandleEvent(ctx, models.Event{ID: "a", Type: models.EventSurveyData}))
	assert.NoError(t, svc.HandleEvent(ctx, models.Event{ID: "b", Type: "heartbeat", Source: "p-1"}))
	assert.NoError(t, svc.HandleEvent(ctx, models.Event{ID: "c", Type: models.EventPageVisit, Source: "p-1", Data: map[string]interface{}{}}))
	assert.Empty(t, sink.submissions)
	assert.Empty(t, sink.visits)
}

func TestHandleEventStoreError(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	svc := NewService(sink)

	err := svc.HandleEvent(context.Background(), models.Event{ID: "e", Type: models.EventSurveyData, Source: "p-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSubmissionsHandler(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(sink)
	ctx := context.Background()
	for _, source := range []string{"p-1", "p-1", "p-2"} {
		require.NoError(t, svc.HandleEvent(ctx, models.Event{Type: models.EventSurveyData, Source: source}))
	}

	router := mux.NewRouter()
	NewHandler(svc).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/participants/p-1/submissions?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []SubmissionRecord `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "p-1", body.Items[0].Participant)
	assert.NotEmpty(t, body.Items[0].EventID)
}
