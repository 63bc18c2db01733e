package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/store"
)

type fakePublisher struct {
	down     bool
	attempts []string
	events   []models.Event
}

func (f *fakePublisher) Publish(_ context.Context, e models.Event) error {
	f.attempts = append(f.attempts, e.ID)
	if f.down {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, e)
	return nil
}

func setup(t *testing.T) (*Client, *fakePublisher, *fakePublisher, *store.MemoryStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(context.Background(), store.KeyUUID, "participant-1"))
	responses, logs := &fakePublisher{}, &fakePublisher{}
	return NewClient(responses, logs, kv), responses, logs, kv
}

func TestSendSurveyDataPublishes(t *testing.T) {
	c, responses, logs, _ := setup(t)
	c.SendSurveyData(context.Background(), models.SurveyData{
		ModuleIndex: 2,
		ModuleName:  "Morning",
		Responses:   models.Responses{"q1": models.Text("yes")},
	})

	require.Len(t, responses.events, 1)
	assert.Empty(t, logs.events)
	got := responses.events[0]
	assert.Equal(t, models.EventSurveyData, got.Type)
	assert.Equal(t, "participant-1", got.Source)
	assert.Equal(t, float64(2), got.Data["module_index"])
	assert.Equal(t, map[string]interface{}{"q1": "yes"}, got.Data["responses"])
}

func TestFailedSendIsQueuedAndRetried(t *testing.T) {
	ctx := context.Background()
	c, _, logs, kv := setup(t)
	logs.down = true

	at := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	c.LogPageVisit(ctx, models.NewLogEvent(at, models.PageSurvey, models.VisitEntry, 0))
	c.LogPageVisit(ctx, models.NewLogEvent(at, models.PageSurvey, models.VisitExit, 0))

	var pending []Pending
	ok, err := kv.Get(ctx, store.KeyPendingLog, &pending)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, pending, 2)

	n, err := c.UploadPending(ctx, store.KeyPendingLog)
	require.NoError(t, err)
	assert.Zero(t, n)

	logs.down = false
	n, err = c.UploadPending(ctx, store.KeyPendingLog)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, logs.events, 2)
	assert.Equal(t, "exit", logs.events[1].Data["event"])

	ok, err = kv.Get(ctx, store.KeyPendingLog, &pending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadPendingUnknownQueue(t *testing.T) {
	c, _, _, _ := setup(t)
	_, err := c.UploadPending(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestReactionTimesUseResponsesTopic(t *testing.T) {
	c, responses, _, _ := setup(t)
	c.SendReactionTimes(context.Background(), models.ReactionTimeData{Name: "pvt", Entries: []int{312, -1}})

	require.Len(t, responses.events, 1)
	assert.Equal(t, models.EventReactionTimes, responses.events[0].Type)
	assert.Equal(t, []interface{}{float64(312), float64(-1)}, responses.events[0].Data["entries"])
}

func TestRetryKeepsEventID(t *testing.T) {
	ctx := context.Background()
	c, responses, _, kv := setup(t)
	responses.down = true

	c.SendSurveyData(ctx, models.SurveyData{ModuleIndex: 0, ModuleName: "Morning"})
	require.Len(t, responses.attempts, 1)
	first := responses.attempts[0]
	require.NotEmpty(t, first)

	var pending []Pending
	_, err := kv.Get(ctx, store.KeyPendingData, &pending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].ID)

	_, err = c.UploadPending(ctx, store.KeyPendingData)
	require.NoError(t, err)
	responses.down = false
	n, err := c.UploadPending(ctx, store.KeyPendingData)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{first, first, first}, responses.attempts)
	require.Len(t, responses.events, 1)
	assert.Equal(t, first, responses.events[0].ID)
	assert.Equal(t, "participant-1", responses.events[0].Source)
	assert.False(t, responses.events[0].Timestamp.IsZero())
}

func TestLegacyPendingItemGetsStableID(t *testing.T) {
	ctx := context.Background()
	c, responses, _, kv := setup(t)
	require.NoError(t, kv.Set(ctx, store.KeyPendingData, []Pending{{Type: models.EventSurveyData, Data: map[string]interface{}{}}}))
	responses.down = true

	_, err := c.UploadPending(ctx, store.KeyPendingData)
	require.NoError(t, err)

	var pending []Pending
	_, err = kv.Get(ctx, store.KeyPendingData, &pending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Len(t, responses.attempts, 1)
	assert.Equal(t, responses.attempts[0], pending[0].ID)
}
