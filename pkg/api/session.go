package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/pvt"
	"github.com/synaptica-ai/studyrunner/pkg/survey"
)

var ErrNoSession = errors.New("no module is running")

// active holds the single running module execution. Starting a new one
// exits the previous one first.
type active struct {
	mu     sync.Mutex
	survey *survey.Session
	pvt    *pvt.Session
	cancel context.CancelFunc
}

func (a *active) replaceSurvey(ctx context.Context, s *survey.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked(ctx)
	a.survey = s
}

func (a *active) replacePVT(ctx context.Context, s *pvt.Session, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	a.pvt = s
	a.cancel = cancel
	go pvt.NewRunner(s, interval).Run(runCtx)
}

func (a *active) stopLocked(ctx context.Context) {
	if a.survey != nil {
		a.survey.Exit(ctx)
		a.survey = nil
	}
	if a.pvt != nil {
		a.pvt.Exit(ctx)
		a.pvt = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *active) stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked(ctx)
}

// withSurvey runs fn against the active survey under the session lock.
func (a *active) withSurvey(fn func(*survey.Session) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.survey == nil {
		return ErrNoSession
	}
	return fn(a.survey)
}

func (a *active) withPVT(fn func(*pvt.Session) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pvt == nil {
		return ErrNoSession
	}
	return fn(a.pvt)
}

// view returns whichever session is active.
func (a *active) view() (interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.survey != nil:
		return a.survey.View(), nil
	case a.pvt != nil:
		return pvtView(a.pvt), nil
	default:
		return nil, ErrNoSession
	}
}

// PVTView is the renderer's view of a running reaction test.
type PVTView struct {
	SessionID string `json:"session_id"`
	TaskID    int    `json:"task_id"`
	pvt.Snapshot
}

func pvtView(s *pvt.Session) PVTView {
	return PVTView{SessionID: s.ID, TaskID: s.Task().TaskID, Snapshot: s.Engine.Snapshot()}
}
