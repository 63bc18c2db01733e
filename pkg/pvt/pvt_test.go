package pvt

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
	"github.com/synaptica-ai/studyrunner/pkg/store"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

var start = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func params(trials int) Params {
	return Params{
		Trials:      trials,
		MinWaiting:  time.Second,
		MaxWaiting:  2 * time.Second,
		MaxReaction: 500 * time.Millisecond,
		ShowResults: true,
		ExitEnabled: true,
		SubmitText:  "Done",
	}
}

func newEngine(trials int) *Engine {
	return NewEngine(params(trials), rand.New(rand.NewPCG(1, 2)), start)
}

// toGame runs the countdown and returns the time the first game wait began.
func toGame(t *testing.T, e *Engine, now time.Time) time.Time {
	t.Helper()
	require.NoError(t, e.Begin(now))
	assert.Equal(t, PhaseCountdown, e.Snapshot().Phase)
	assert.Equal(t, 3, e.Snapshot().Countdown)

	now = now.Add(time.Second)
	e.Tick(now)
	assert.Equal(t, 2, e.Snapshot().Countdown)

	now = now.Add(2 * time.Second)
	e.Tick(now)
	require.Equal(t, PhaseGame, e.Phase())
	return now
}

// toStimulus ticks past the longest possible wait and returns the show time.
func toStimulus(t *testing.T, e *Engine, now time.Time) time.Time {
	t.Helper()
	shown := now.Add(2 * time.Second)
	e.Tick(shown)
	require.Equal(t, StageStimulus, e.Snapshot().Stage)
	return shown
}

func TestValidReaction(t *testing.T) {
	e := newEngine(1)
	now := toGame(t, e, start)
	shown := toStimulus(t, e, now)

	e.Tick(shown.Add(200 * time.Millisecond))
	got, err := e.React(shown.Add(300 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 300, got)

	e.Tick(shown.Add(time.Second))
	assert.Equal(t, PhaseGame, e.Phase())
	e.Tick(shown.Add(300*time.Millisecond + feedbackPause))
	assert.Equal(t, PhasePost, e.Phase())
	assert.Equal(t, []int{300}, e.Entries())
}

func TestNoReactionIsTooSlow(t *testing.T) {
	e := newEngine(1)
	now := toGame(t, e, start)
	shown := toStimulus(t, e, now)

	e.Tick(shown.Add(499 * time.Millisecond))
	assert.Empty(t, e.Entries())
	e.Tick(shown.Add(500 * time.Millisecond))
	assert.Equal(t, []int{TooSlow}, e.Entries())

	_, err := e.React(shown.Add(600 * time.Millisecond))
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.Equal(t, []int{TooSlow}, e.Entries())
}

func TestEarlyReaction(t *testing.T) {
	e := newEngine(2)
	now := toGame(t, e, start)

	got, err := e.React(now.Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, TooEarly, got)
	assert.Equal(t, []int{TooEarly}, e.Entries())
	assert.Equal(t, TooEarly, *e.Snapshot().Result)

	now = now.Add(100*time.Millisecond + feedbackPause)
	e.Tick(now)
	assert.Equal(t, StageWaiting, e.Snapshot().Stage)
	assert.Equal(t, PhaseGame, e.Phase())
}

func TestWaitingWindow(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		e := NewEngine(params(1), rand.New(rand.NewPCG(seed, seed)), start)
		wait := e.waitUntil.Sub(start)
		assert.GreaterOrEqual(t, wait, time.Second)
		assert.Less(t, wait, 2*time.Second)
	}
}

func TestTutorialRecordsNothing(t *testing.T) {
	e := newEngine(1)

	got, err := e.React(start.Add(10 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, TooEarly, got)

	now := start.Add(10*time.Millisecond + feedbackPause)
	e.Tick(now)
	shown := toStimulus(t, e, now)
	e.Tick(shown.Add(tutorialStimulus))
	assert.Equal(t, StageFeedback, e.Snapshot().Stage)
	assert.Empty(t, e.Entries())
	assert.Equal(t, PhasePre, e.Phase())
}

func TestExitStopsEngine(t *testing.T) {
	e := newEngine(3)
	now := toGame(t, e, start)

	assert.True(t, e.Exit())
	assert.False(t, e.Exit())
	e.Tick(now.Add(time.Minute))
	assert.Equal(t, PhaseExited, e.Phase())
	_, err := e.React(now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.True(t, e.Terminal())
}

type fakeUploader struct {
	reactions []models.ReactionTimeData
	events    []string
}

func (f *fakeUploader) SendReactionTimes(_ context.Context, d models.ReactionTimeData) {
	f.reactions = append(f.reactions, d)
}

func (f *fakeUploader) LogPageVisit(_ context.Context, e models.LogEvent) {
	f.events = append(f.events, e.Event)
}

func newSession(t *testing.T) (*Session, *clock.Fake, *tasks.Store, *fakeUploader) {
	t.Helper()
	study := &protocol.Study{Modules: []protocol.Module{
		{Type: protocol.ModuleSurvey, UUID: "m-s"},
		{Type: protocol.ModulePVT, UUID: "m-p", Trials: 1, MinWaiting: 1000, MaxWaiting: 2000, MaxReaction: 500, Show: true},
	}}
	ts := tasks.NewStore(store.NewMemoryStore())
	require.NoError(t, ts.Replace(context.Background(), []tasks.Task{
		{TaskID: 1, UUID: "m-s", Index: 0, Time: start.Add(-time.Hour)},
		{TaskID: 2, UUID: "m-p", Index: 1, Time: start.Add(-time.Hour)},
	}))
	clk := clock.NewFake(start)
	up := &fakeUploader{}
	s, err := Start(context.Background(), Deps{
		Study:    study,
		Tasks:    ts,
		Uploader: up,
		Clock:    clk,
		Rand:     rand.New(rand.NewPCG(3, 4)),
	}, 2)
	require.NoError(t, err)
	return s, clk, ts, up
}

func TestSessionSubmit(t *testing.T) {
	ctx := context.Background()
	s, clk, ts, up := newSession(t)

	assert.ErrorIs(t, s.Submit(ctx), ErrWrongPhase)

	require.NoError(t, s.Begin())
	clk.Advance(3 * time.Second)
	s.Tick()
	clk.Advance(2 * time.Second)
	s.Tick()
	clk.Advance(320 * time.Millisecond)
	got, err := s.React()
	require.NoError(t, err)
	assert.Equal(t, 320, got)
	clk.Advance(feedbackPause)
	s.Tick()

	require.NoError(t, s.Submit(ctx))
	require.Len(t, up.reactions, 1)
	assert.Equal(t, "pvt", up.reactions[0].Name)
	assert.Equal(t, []int{320}, up.reactions[0].Entries)
	assert.Equal(t, []string{models.VisitEntry, models.VisitSubmit}, up.events)

	task, err := ts.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Equal(t, PhaseSubmitted, s.Engine.Phase())
}

func TestSessionExitLeavesTask(t *testing.T) {
	ctx := context.Background()
	s, _, ts, up := newSession(t)

	s.Exit(ctx)
	s.Exit(ctx)
	assert.Equal(t, []string{models.VisitEntry, models.VisitExit}, up.events)

	task, err := ts.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, task.Completed)
}

func TestStartRejectsSurveyTask(t *testing.T) {
	_, _, ts, _ := newSession(t)
	_, err := Start(context.Background(), Deps{
		Study:    &protocol.Study{Modules: []protocol.Module{{Type: protocol.ModuleSurvey}}},
		Tasks:    ts,
		Uploader: &fakeUploader{},
		Clock:    clock.NewFake(start),
	}, 1)
	assert.ErrorIs(t, err, ErrWrongModuleType)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	s, _, _, _ := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewRunner(s, time.Millisecond).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunnerStopsOnTerminal(t *testing.T) {
	s, _, _, _ := newSession(t)
	s.Exit(context.Background())

	done := make(chan struct{})
	go func() {
		NewRunner(s, time.Millisecond).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner kept ticking after exit")
	}
}
