package enrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/httpclient"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/notify"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
	"github.com/synaptica-ai/studyrunner/pkg/store"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

const maxStudyBytes = 10 << 20

type SourceKind string

const (
	SourceURL     SourceKind = "url"
	SourceQR      SourceKind = "qr"
	SourceStudyID SourceKind = "study_id"
)

// Source is where a participant asked to enrol from.
type Source struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value"`
}

func (s Source) url(baseURL string) string {
	if s.Kind == SourceStudyID {
		return baseURL + strings.TrimSpace(s.Value)
	}
	return strings.TrimSpace(s.Value)
}

// UIState carries the progress flags the renderer shows during enrolment.
type UIState struct {
	Loading bool `json:"loading"`
	Caching bool `json:"caching"`
}

type Uploader interface {
	LogPageVisit(ctx context.Context, event models.LogEvent)
	Flush(ctx context.Context)
}

type MediaCache interface {
	PreCache(ctx context.Context, study *protocol.Study) (*protocol.Study, error)
	Clear() error
}

type Service struct {
	kv        store.Store
	tasks     *tasks.Store
	scheduler *notify.Scheduler
	uploader  Uploader
	media     MediaCache
	client    *http.Client
	baseURL   string
	clock     clock.Clock
	rng       *rand.Rand
}

type Options struct {
	Client  *http.Client
	BaseURL string
	Clock   clock.Clock
	Rand    *rand.Rand
}

func NewService(kv store.Store, ts *tasks.Store, scheduler *notify.Scheduler, uploader Uploader, media MediaCache, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Client == nil {
		opts.Client = httpclient.New(15 * time.Second)
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Service{
		kv:        kv,
		tasks:     ts,
		scheduler: scheduler,
		uploader:  uploader,
		media:     media,
		client:    opts.Client,
		baseURL:   opts.BaseURL,
		clock:     opts.Clock,
		rng:       opts.Rand,
	}
}

// Enrolment summarises a successful enrolment.
type Enrolment struct {
	StudyID   string `json:"study_id"`
	Condition string `json:"condition,omitempty"`
	Tasks     int    `json:"tasks"`
	Cycles    int    `json:"unlock_cycles,omitempty"`
}

// Participant returns the device's participant id, creating it on first use
// together with the default notification setting.
func (s *Service) Participant(ctx context.Context) (string, error) {
	var set bool
	if _, err := s.kv.Get(ctx, store.KeyUUIDSet, &set); err != nil {
		return "", err
	}
	if set {
		var id string
		if _, err := s.kv.Get(ctx, store.KeyUUID, &id); err != nil {
			return "", err
		}
		return id, nil
	}

	id := uuid.New().String()
	for key, value := range map[string]interface{}{
		store.KeyUUID:                 id,
		store.KeyUUIDSet:              true,
		store.KeyNotificationsEnabled: true,
	} {
		if err := s.kv.Set(ctx, key, value); err != nil {
			return "", err
		}
	}
	logger.WithField("participant", id).Info("Participant identity created")
	return id, nil
}

// Enrolled reports whether a study is stored.
func (s *Service) Enrolled(ctx context.Context) (bool, error) {
	var raw json.RawMessage
	return s.kv.Get(ctx, store.KeyCurrentStudy, &raw)
}

// CurrentStudy loads the stored protocol.
func (s *Service) CurrentStudy(ctx context.Context) (*protocol.Study, error) {
	var raw json.RawMessage
	ok, err := s.kv.Get(ctx, store.KeyCurrentStudy, &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	return protocol.ParseJSON(raw)
}

var ErrNotEnrolled = errors.New("not enrolled in a study")

// Enrol downloads, checks and stores a study, then generates its tasks. The
// task list is written last so a failed enrolment leaves no schedule behind.
func (s *Service) Enrol(ctx context.Context, src Source, ui *UIState) (*Enrolment, error) {
	if ui == nil {
		ui = &UIState{}
	}
	ui.Loading, ui.Caching = true, false
	defer func() { ui.Loading, ui.Caching = false, false }()

	enrolled, err := s.Enrolled(ctx)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}
	if _, err := s.Participant(ctx); err != nil {
		return nil, err
	}

	study, raw, err := s.download(ctx, src)
	if err != nil {
		metrics.IncEnrolmentFailure()
		logger.Log.WithError(err).WithField("source", src.Kind).Warn("Enrolment failed")
		return nil, err
	}
	log := logger.WithField("study_id", study.Properties.StudyID)

	cycles := study.UnlockCycles()
	for _, c := range cycles {
		log.WithField("modules", c).Warn("Unlock cycle: these modules can never become available")
	}

	condition := ""
	if n := len(study.Properties.Conditions); n > 0 {
		condition = study.Properties.Conditions[s.rng.IntN(n)]
	}
	now := s.clock.Now()

	if err := s.kv.Set(ctx, store.KeyCurrentStudy, raw); err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, store.KeyEnrolmentDate, now); err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, store.KeyCondition, condition); err != nil {
		return nil, err
	}
	s.uploader.LogPageVisit(ctx, models.NewLogEvent(now, models.PageHome, models.VisitEnrol, -1))

	if study.Properties.Cache && s.media != nil {
		ui.Caching = true
		cached, err := s.media.PreCache(ctx, study)
		if err != nil {
			log.WithError(err).Warn("Media caching failed, using remote URLs")
		} else if encoded, err := cached.Encode(); err == nil {
			study = cached
			if err := s.kv.Set(ctx, store.KeyCurrentStudy, json.RawMessage(encoded)); err != nil {
				return nil, err
			}
		}
		ui.Caching = false
	}

	all := tasks.Generate(study, now, tasks.GenerateOptions{Condition: condition, Rand: s.rng})
	if err := s.tasks.Replace(ctx, all); err != nil {
		return nil, err
	}

	metrics.IncEnrolment()
	log.WithFields(map[string]interface{}{
		"condition": condition,
		"tasks":     len(all),
	}).Info("Enrolled in study")

	return &Enrolment{
		StudyID:   study.Properties.StudyID,
		Condition: condition,
		Tasks:     len(all),
		Cycles:    len(cycles),
	}, nil
}

func (s *Service) download(ctx context.Context, src Source) (*protocol.Study, json.RawMessage, error) {
	target := src.url(s.baseURL)
	if target == "" {
		return nil, nil, &EnrolError{Source: src, Network: true, Err: errors.New("empty address")}
	}

	var body []byte
	err := httpclient.Retry(ctx, 3, 250*time.Millisecond, func() error {
		var ferr error
		body, ferr = httpclient.Fetch(ctx, s.client, target, maxStudyBytes)
		return ferr
	})
	if err != nil {
		return nil, nil, &EnrolError{Source: src, Network: true, Err: err}
	}

	study, err := protocol.Parse(body)
	if err != nil {
		var perr *protocol.ParseError
		network := errors.As(err, &perr) && !perr.Syntax
		return nil, nil, &EnrolError{Source: src, Malformed: true, Network: network, Err: err}
	}
	if err := study.Validate(); err != nil {
		return nil, nil, &EnrolError{Source: src, Malformed: true, Err: err}
	}

	raw := json.RawMessage(body)
	if !json.Valid(body) {
		encoded, err := study.Encode()
		if err != nil {
			return nil, nil, &EnrolError{Source: src, Malformed: true, Err: err}
		}
		raw = encoded
	}
	return study, raw, nil
}

// Unenrol removes the study and its schedule. The participant identity and
// any pending uploads are kept.
func (s *Service) Unenrol(ctx context.Context) error {
	enrolled, err := s.Enrolled(ctx)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrNotEnrolled
	}

	s.uploader.LogPageVisit(ctx, models.NewLogEvent(s.clock.Now(), models.PageHome, models.VisitUnenrol, -1))

	if err := s.tasks.Replace(ctx, []tasks.Task{}); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, store.KeyStudyTasks, store.KeyCurrentStudy, store.KeyEnrolmentDate, store.KeyCondition); err != nil {
		return err
	}
	if _, err := s.scheduler.Reschedule(ctx); err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}
	if s.media != nil {
		if err := s.media.Clear(); err != nil {
			logger.Log.WithError(err).Warn("Failed to clear media cache")
		}
	}
	logger.Log.Info("Unenrolled from study")
	return nil
}

// SetNotifications stores the flag and rebuilds reminders to match it.
func (s *Service) SetNotifications(ctx context.Context, enabled bool) (int, error) {
	if err := s.kv.Set(ctx, store.KeyNotificationsEnabled, enabled); err != nil {
		return 0, err
	}
	return s.scheduler.Reschedule(ctx)
}

// Home is the task list screen.
type Home struct {
	Enrolled             bool                 `json:"enrolled"`
	Study                *protocol.Properties `json:"study,omitempty"`
	Condition            string               `json:"condition,omitempty"`
	NotificationsEnabled bool                 `json:"notifications_enabled"`
	Tasks                []tasks.Task         `json:"tasks"`
}

// Home logs the visit, retries pending uploads, refreshes reminders and
// returns the tasks currently on offer.
func (s *Service) Home(ctx context.Context) (*Home, error) {
	home := &Home{Tasks: []tasks.Task{}}

	study, err := s.CurrentStudy(ctx)
	if errors.Is(err, ErrNotEnrolled) {
		return home, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.uploader.LogPageVisit(ctx, models.NewLogEvent(now, models.PageHome, models.VisitEntry, -1))
	s.uploader.Flush(ctx)

	if _, err := s.scheduler.Reschedule(ctx); err != nil {
		logger.Log.WithError(err).Warn("Failed to refresh reminders")
	}

	all, err := s.tasks.All(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.kv.Get(ctx, store.KeyCondition, &home.Condition); err != nil {
		return nil, err
	}
	if home.NotificationsEnabled, err = s.scheduler.Enabled(ctx); err != nil {
		return nil, err
	}

	home.Enrolled = true
	home.Study = &study.Properties
	if available := tasks.Available(all, now); available != nil {
		home.Tasks = available
	}
	return home, nil
}
