package pvt

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskUnavailable = errors.New("task is not available")
	ErrWrongModuleType = errors.New("module is not a reaction-time test")
)

// Uploader is the subset of the upload client the engine needs.
type Uploader interface {
	SendReactionTimes(ctx context.Context, data models.ReactionTimeData)
	LogPageVisit(ctx context.Context, event models.LogEvent)
}

type Deps struct {
	Study    *protocol.Study
	Tasks    *tasks.Store
	Uploader Uploader
	Clock    clock.Clock
	Rand     *rand.Rand
}

// Session binds an engine to the task it runs for.
type Session struct {
	ID     string
	Engine *Engine

	deps Deps
	task tasks.Task
}

func Start(ctx context.Context, deps Deps, taskID int) (*Session, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	rng := deps.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	all, err := deps.Tasks.All(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := tasks.Find(all, taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	task := all[i]
	now := deps.Clock.Now()
	if !tasks.IsAvailable(task, tasks.NewCompletedSet(all), now) {
		return nil, fmt.Errorf("%w: %d", ErrTaskUnavailable, taskID)
	}
	if task.Index < 0 || task.Index >= len(deps.Study.Modules) {
		return nil, fmt.Errorf("%w: %d has no module %d", ErrTaskNotFound, taskID, task.Index)
	}
	module := deps.Study.Modules[task.Index]
	if module.Type != protocol.ModulePVT {
		return nil, fmt.Errorf("%w: %s", ErrWrongModuleType, module.Type)
	}

	s := &Session{
		ID:     uuid.New().String(),
		Engine: NewEngine(ParamsFromModule(module), rng, now),
		deps:   deps,
		task:   task,
	}
	s.log(ctx, models.VisitEntry)
	logger.ForTask("pvt", task.TaskID, task.Index).
		WithField("trials", module.Trials).
		Info("Reaction test started")
	return s, nil
}

func (s *Session) Task() tasks.Task { return s.task }

func (s *Session) Tick()              { s.Engine.Tick(s.deps.Clock.Now()) }
func (s *Session) Begin() error       { return s.Engine.Begin(s.deps.Clock.Now()) }
func (s *Session) React() (int, error) { return s.Engine.React(s.deps.Clock.Now()) }

// Submit uploads the recorded entries and completes the task.
func (s *Session) Submit(ctx context.Context) error {
	if s.Engine.Phase() != PhasePost {
		return ErrWrongPhase
	}
	entries := s.Engine.Entries()
	now := s.deps.Clock.Now()

	done, err := s.deps.Tasks.Complete(ctx, s.task.TaskID, tasks.Completion{At: now})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if err := s.Engine.markSubmitted(); err != nil {
		return err
	}
	s.task = done
	metrics.IncTaskCompleted()
	for _, v := range entries {
		if v >= 0 {
			metrics.IncReactionTrial()
		}
	}

	s.deps.Uploader.SendReactionTimes(ctx, models.ReactionTimeData{
		Name:    "pvt",
		Entries: entries,
		Time:    now.Format(time.RFC3339),
	})
	s.log(ctx, models.VisitSubmit)
	logger.ForTask("pvt", done.TaskID, done.Index).
		WithField("entries", entries).
		Info("Reaction test submitted")
	return nil
}

// Exit cancels the test without touching the task list.
func (s *Session) Exit(ctx context.Context) {
	if !s.Engine.Exit() {
		return
	}
	s.log(ctx, models.VisitExit)
	logger.ForTask("pvt", s.task.TaskID, s.task.Index).Info("Reaction test exited")
}

func (s *Session) log(ctx context.Context, event string) {
	s.deps.Uploader.LogPageVisit(ctx, models.NewLogEvent(s.deps.Clock.Now(), models.PagePVT, event, s.task.Index))
}
