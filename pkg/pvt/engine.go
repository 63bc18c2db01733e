package pvt

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

type Phase string

const (
	PhasePre       Phase = "pre"
	PhaseCountdown Phase = "countdown"
	PhaseGame      Phase = "game"
	PhasePost      Phase = "post"
	PhaseExited    Phase = "exited"
	PhaseSubmitted Phase = "submitted"
)

// Stage is the position inside a single trial.
type Stage string

const (
	StageWaiting  Stage = "waiting"
	StageStimulus Stage = "stimulus"
	StageFeedback Stage = "feedback"
)

// Sentinel results for invalid trials.
const (
	TooSlow  = -1
	TooEarly = -2
)

const (
	CountdownFrom    = 3
	countdownStep    = time.Second
	feedbackPause    = 2 * time.Second
	tutorialStimulus = 279 * time.Millisecond
)

var ErrWrongPhase = errors.New("action not allowed in the current phase")

// Params are read from the module definition.
type Params struct {
	Trials      int
	MinWaiting  time.Duration
	MaxWaiting  time.Duration
	MaxReaction time.Duration
	ShowResults bool
	ExitEnabled bool
	SubmitText  string
}

func ParamsFromModule(m protocol.Module) Params {
	return Params{
		Trials:      m.Trials,
		MinWaiting:  time.Duration(m.MinWaiting) * time.Millisecond,
		MaxWaiting:  time.Duration(m.MaxWaiting) * time.Millisecond,
		MaxReaction: time.Duration(m.MaxReaction) * time.Millisecond,
		ShowResults: m.Show,
		ExitEnabled: m.Exit,
		SubmitText:  m.SubmitText,
	}
}

// Engine is the reaction-time state machine. It never sleeps: every
// transition is driven by Tick or React with the caller's notion of now, so
// an exit takes effect at the next call.
type Engine struct {
	mu     sync.Mutex
	params Params
	rng    *rand.Rand

	phase     Phase
	countdown int
	nextCount time.Time

	stage      Stage
	waitUntil  time.Time
	shownAt    time.Time
	resumeAt   time.Time
	lastResult int
	hasResult  bool

	entries []int
}

// NewEngine starts in the tutorial with the first wait beginning at now.
func NewEngine(params Params, rng *rand.Rand, now time.Time) *Engine {
	e := &Engine{params: params, rng: rng, phase: PhasePre}
	e.startWait(now)
	return e
}

func (e *Engine) delay() time.Duration {
	span := e.params.MaxWaiting - e.params.MinWaiting
	if span <= 0 {
		return e.params.MinWaiting
	}
	return e.params.MinWaiting + time.Duration(e.rng.Int64N(int64(span)))
}

func (e *Engine) startWait(now time.Time) {
	e.stage = StageWaiting
	e.waitUntil = now.Add(e.delay())
	e.shownAt = time.Time{}
}

func (e *Engine) feedback(now time.Time, result int) {
	e.stage = StageFeedback
	e.lastResult = result
	e.hasResult = true
	e.resumeAt = now.Add(feedbackPause)
}

func (e *Engine) record(now time.Time, result int) {
	e.entries = append(e.entries, result)
	e.feedback(now, result)
}

// Begin leaves the tutorial and starts the countdown.
func (e *Engine) Begin(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhasePre {
		return ErrWrongPhase
	}
	e.phase = PhaseCountdown
	e.countdown = CountdownFrom
	e.nextCount = now.Add(countdownStep)
	e.hasResult = false
	return nil
}

// Tick applies every time-based transition due at now.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhasePre:
		e.tickTrial(now, true)
	case PhaseCountdown:
		for e.countdown > 0 && !now.Before(e.nextCount) {
			e.countdown--
			e.nextCount = e.nextCount.Add(countdownStep)
		}
		if e.countdown == 0 {
			e.phase = PhaseGame
			e.hasResult = false
			e.startWait(now)
		}
	case PhaseGame:
		e.tickTrial(now, false)
	}
}

func (e *Engine) tickTrial(now time.Time, tutorial bool) {
	switch e.stage {
	case StageWaiting:
		if !now.Before(e.waitUntil) {
			e.stage = StageStimulus
			e.shownAt = now
		}
	case StageStimulus:
		elapsed := now.Sub(e.shownAt)
		if tutorial {
			if elapsed >= tutorialStimulus {
				e.feedback(now, int(tutorialStimulus.Milliseconds()))
			}
			return
		}
		if elapsed >= e.params.MaxReaction {
			e.record(now, TooSlow)
		}
	case StageFeedback:
		if now.Before(e.resumeAt) {
			return
		}
		if !tutorial && len(e.entries) >= e.params.Trials {
			e.phase = PhasePost
			return
		}
		e.startWait(now)
	}
}

// React registers a tap at now and returns the result shown to the user.
// Tutorial reactions are never recorded.
func (e *Engine) React(now time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhasePre && e.phase != PhaseGame {
		return 0, ErrWrongPhase
	}
	tutorial := e.phase == PhasePre

	switch e.stage {
	case StageWaiting:
		if tutorial {
			e.feedback(now, TooEarly)
		} else {
			e.record(now, TooEarly)
		}
		return TooEarly, nil
	case StageStimulus:
		elapsed := now.Sub(e.shownAt)
		result := int(elapsed.Milliseconds())
		if !tutorial && elapsed >= e.params.MaxReaction {
			result = TooSlow
		}
		if tutorial {
			e.feedback(now, result)
		} else {
			e.record(now, result)
		}
		return result, nil
	default:
		return e.lastResult, ErrWrongPhase
	}
}

// Exit abandons the test. Recorded entries are discarded by the caller.
func (e *Engine) Exit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.phase {
	case PhaseExited, PhaseSubmitted:
		return false
	}
	e.phase = PhaseExited
	return true
}

func (e *Engine) markSubmitted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhasePost {
		return ErrWrongPhase
	}
	e.phase = PhaseSubmitted
	return nil
}

// Terminal reports whether no further ticks can change the engine.
func (e *Engine) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.phase {
	case PhasePost, PhaseExited, PhaseSubmitted:
		return true
	}
	return false
}

// Snapshot is the renderer's view of the engine.
type Snapshot struct {
	Phase       Phase  `json:"phase"`
	Stage       Stage  `json:"stage,omitempty"`
	Countdown   int    `json:"countdown,omitempty"`
	Result      *int   `json:"result,omitempty"`
	Entries     []int  `json:"entries,omitempty"`
	TrialsDone  int    `json:"trials_done"`
	Trials      int    `json:"trials"`
	ExitEnabled bool   `json:"exit_enabled"`
	SubmitText  string `json:"submit_text,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Phase:       e.phase,
		TrialsDone:  len(e.entries),
		Trials:      e.params.Trials,
		ExitEnabled: e.params.ExitEnabled,
		SubmitText:  e.params.SubmitText,
	}
	switch e.phase {
	case PhasePre, PhaseGame:
		s.Stage = e.stage
	case PhaseCountdown:
		s.Countdown = e.countdown
	}
	if e.hasResult && e.stage == StageFeedback && (e.params.ShowResults || e.phase == PhasePre) {
		r := e.lastResult
		s.Result = &r
	}
	if e.phase == PhasePost || e.phase == PhaseSubmitted {
		s.Entries = e.entriesLocked()
	}
	return s
}

// Entries returns a copy of the recorded results.
func (e *Engine) Entries() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entriesLocked()
}

func (e *Engine) entriesLocked() []int {
	return append([]int{}, e.entries...)
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}
