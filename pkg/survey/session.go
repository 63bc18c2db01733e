package survey

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

type State string

const (
	StateSection   State = "section"
	StateSubmitted State = "submitted"
	StateExited    State = "exited"
)

const NextLabel = "Next"

// Uploader is the subset of the upload client the survey engine needs.
type Uploader interface {
	SendSurveyData(ctx context.Context, data models.SurveyData)
	LogPageVisit(ctx context.Context, event models.LogEvent)
}

// Deps are the collaborators a session works against.
type Deps struct {
	Study       *protocol.Study
	Tasks       *tasks.Store
	Uploader    Uploader
	Sanitizer   Sanitizer
	Clock       clock.Clock
	Rand        *rand.Rand
	Participant string
}

type section struct {
	name      string
	questions []*QuestionState
}

// Session executes one survey-type task. It is not safe for concurrent use;
// callers serialise access to the active session.
type Session struct {
	ID string

	deps     Deps
	rng      *rand.Rand
	task     tasks.Task
	module   protocol.Module
	sections []section
	all      []*QuestionState
	byID     map[string]*QuestionState
	current  int
	state    State
}

// Start opens the task for execution. Order of sections, questions and
// options is reshuffled on every start.
func Start(ctx context.Context, deps Deps, taskID int) (*Session, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = SchemeSanitizer{}
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
	if !module.Type.RunsInSurveyEngine() {
		return nil, fmt.Errorf("%w: %s", ErrWrongModuleType, module.Type)
	}

	s := &Session{
		ID:     uuid.New().String(),
		deps:   deps,
		rng:    rng,
		task:   task,
		module: module,
		byID:   make(map[string]*QuestionState),
		state:  StateSection,
	}
	if err := s.build(now); err != nil {
		return nil, err
	}
	s.applyRandGroups()
	s.evaluateAll()

	s.log(ctx, models.VisitEntry)
	logger.ForTask("survey", task.TaskID, task.Index).
		WithField("sections", len(s.sections)).
		Info("Survey started")
	return s, nil
}

func (s *Session) build(now time.Time) error {
	order := make([]int, len(s.module.Sections))
	for i := range order {
		order[i] = i
	}
	if s.module.Shuffle {
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	for _, si := range order {
		src := s.module.Sections[si]
		questions := make([]protocol.Question, len(src.Questions))
		copy(questions, src.Questions)
		if src.Shuffle {
			s.rng.Shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
		}

		sec := section{name: src.Name}
		for _, q := range questions {
			qs, err := newQuestionState(q, now, s.rng, s.deps.Participant, s.deps.Sanitizer)
			if err != nil {
				return err
			}
			sec.questions = append(sec.questions, qs)
			s.all = append(s.all, qs)
			s.byID[qs.ID] = qs
		}
		s.sections = append(s.sections, sec)
	}
	if len(s.sections) == 0 {
		return fmt.Errorf("module %q has no sections", s.module.UUID)
	}
	return nil
}

func (s *Session) State() State     { return s.state }
func (s *Session) Task() tasks.Task { return s.task }

// Question returns the current view state of any question in the module.
func (s *Session) Question(id string) (QuestionState, bool) {
	q, ok := s.byID[id]
	if !ok {
		return QuestionState{}, false
	}
	return *q, true
}

func (s *Session) onCurrentSection(id string) (*QuestionState, error) {
	if s.state != StateSection {
		return nil, ErrNotActive
	}
	for _, q := range s.sections[s.current].questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
}

// SetAnswer records an answer. For date and slider questions an empty value
// accepts the pending model as the answer.
func (s *Session) SetAnswer(id string, value models.Value) error {
	q, err := s.onCurrentSection(id)
	if err != nil {
		return err
	}
	if !answerable(q.Question) {
		return fmt.Errorf("%w: %s", ErrNotAnswerable, id)
	}

	switch question := q.Question.(type) {
	case *protocol.DateTime, *protocol.Slider:
		if !value.IsEmpty() {
			q.Model = value
		}
		q.Response = q.Model
	case *protocol.Multi:
		if question.Radio {
			if !value.IsEmpty() && !hasOption(q.Options, value.String()) {
				return fmt.Errorf("%w: %s", ErrUnknownOption, value.String())
			}
			for i := range q.Options {
				q.Options[i].Checked = q.Options[i].Text == value.String()
			}
		} else {
			q.checked = q.checked[:0]
			for _, text := range strings.Split(value.String(), ";") {
				if text != "" && hasOption(q.Options, text) {
					q.checked = append(q.checked, text)
				}
			}
			for i := range q.Options {
				q.Options[i].Checked = slices.Contains(q.checked, q.Options[i].Text)
			}
		}
		q.Response = value
	default:
		q.Response = value
	}

	q.Invalid = false
	s.evaluate(q)
	return nil
}

// ToggleOption flips one checkbox of a multi-select question and rebuilds its
// delimited response.
func (s *Session) ToggleOption(id, option string) error {
	q, err := s.onCurrentSection(id)
	if err != nil {
		return err
	}
	multi, ok := q.Question.(*protocol.Multi)
	if !ok || multi.Radio {
		return fmt.Errorf("%w: %s is not a checklist", ErrNotAnswerable, id)
	}

	found := false
	for i := range q.Options {
		if q.Options[i].Text == option {
			q.Options[i].Checked = !q.Options[i].Checked
			found = true
			if q.Options[i].Checked {
				q.checked = append(q.checked, option)
			} else {
				q.checked = slices.DeleteFunc(q.checked, func(c string) bool { return c == option })
			}
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownOption, option)
	}

	q.Response = checklistResponse(q.checked)
	q.Invalid = false
	s.evaluate(q)
	return nil
}

func hasOption(options []Option, text string) bool {
	for _, o := range options {
		if o.Text == text {
			return true
		}
	}
	return false
}

// Submit validates the current section and advances, or finalises the
// module on the last section.
func (s *Session) Submit(ctx context.Context) error {
	if s.state != StateSection {
		return ErrNotActive
	}

	var missing []string
	for _, q := range s.sections[s.current].questions {
		q.Invalid = false
		if q.Visible() && q.required() && q.Response.IsEmpty() {
			q.Invalid = true
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		metrics.IncValidationFailure()
		return &ValidationError{Missing: missing}
	}

	if s.current < len(s.sections)-1 {
		s.current++
		return nil
	}
	return s.finalise(ctx)
}

func (s *Session) finalise(ctx context.Context) error {
	responses := make(models.Responses, len(s.all))
	for _, q := range s.all {
		responses[q.ID] = q.Response
	}

	now := s.deps.Clock.Now()
	done, err := s.deps.Tasks.Complete(ctx, s.task.TaskID, tasks.Completion{Responses: responses, At: now})
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrTaskNotFound, s.task.TaskID)
		}
		return fmt.Errorf("complete task: %w", err)
	}
	s.task = done
	metrics.IncTaskCompleted()

	s.deps.Uploader.SendSurveyData(ctx, models.SurveyData{
		ModuleIndex:      done.Index,
		ModuleName:       s.module.Name,
		Responses:        responses,
		ResponseTime:     done.ResponseTime,
		ResponseTimeInMs: done.ResponseTimeMs,
		AlertTime:        done.AlertTime,
	})
	s.log(ctx, models.VisitSubmit)
	s.state = StateSubmitted

	logger.ForTask("survey", done.TaskID, done.Index).Info("Survey submitted")
	return nil
}

// Back returns to the previous section with answers intact. From the first
// section it leaves the module without completing it.
func (s *Session) Back(ctx context.Context) error {
	if s.state != StateSection {
		return ErrNotActive
	}
	if s.current > 0 {
		s.current--
		return nil
	}
	s.Exit(ctx)
	return nil
}

// Exit abandons the session. The task list is not touched.
func (s *Session) Exit(ctx context.Context) {
	if s.state != StateSection {
		return
	}
	s.log(ctx, models.VisitExit)
	s.state = StateExited
	logger.ForTask("survey", s.task.TaskID, s.task.Index).Info("Survey exited")
}

func (s *Session) log(ctx context.Context, event string) {
	s.deps.Uploader.LogPageVisit(ctx, models.NewLogEvent(s.deps.Clock.Now(), models.PageSurvey, event, s.task.Index))
}

// View is what the renderer shows for the current section.
type View struct {
	SessionID    string          `json:"session_id"`
	TaskID       int             `json:"task_id"`
	ModuleName   string          `json:"module_name"`
	State        State           `json:"state"`
	Section      string          `json:"section"`
	SectionIndex int             `json:"section_index"`
	SectionCount int             `json:"section_count"`
	SubmitLabel  string          `json:"submit_label"`
	Questions    []QuestionState `json:"questions"`
}

func (s *Session) View() View {
	sec := s.sections[s.current]
	v := View{
		SessionID:    s.ID,
		TaskID:       s.task.TaskID,
		ModuleName:   s.module.Name,
		State:        s.state,
		Section:      sec.name,
		SectionIndex: s.current,
		SectionCount: len(s.sections),
		SubmitLabel:  s.submitLabel(),
		Questions:    []QuestionState{},
	}
	for _, q := range sec.questions {
		if q.Visible() {
			v.Questions = append(v.Questions, *q)
		}
	}
	return v
}

func (s *Session) submitLabel() string {
	if s.current < len(s.sections)-1 {
		return NextLabel
	}
	if s.module.SubmitText != "" {
		return s.module.SubmitText
	}
	return "Submit"
}
