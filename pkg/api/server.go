package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/studyrunner/pkg/api/middleware"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/enrol"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
	"github.com/synaptica-ai/studyrunner/pkg/pvt"
	"github.com/synaptica-ai/studyrunner/pkg/survey"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

// Uploader covers both engines' upload needs.
type Uploader interface {
	survey.Uploader
	SendReactionTimes(ctx context.Context, data models.ReactionTimeData)
}

type Config struct {
	TickInterval   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int
}

// Server is the HTTP surface the renderer drives the engines through.
type Server struct {
	enrol    *enrol.Service
	tasks    *tasks.Store
	uploader Uploader
	clock    clock.Clock
	cfg      Config
	session  active
}

func NewServer(es *enrol.Service, ts *tasks.Store, uploader Uploader, clk clock.Clock, cfg Config) *Server {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Server{enrol: es, tasks: ts, uploader: uploader, clock: clk, cfg: cfg}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	if s.cfg.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	}
	if s.cfg.MaxRequestBody > 0 {
		router.Use(middleware.BodyLimit(s.cfg.MaxRequestBody))
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/home", s.handleHome).Methods(http.MethodGet)
	v1.HandleFunc("/enrolment", s.handleEnrol).Methods(http.MethodPost)
	v1.HandleFunc("/enrolment", s.handleUnenrol).Methods(http.MethodDelete)
	v1.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodPut)
	v1.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{taskID:[0-9]+}/start", s.handleStart).Methods(http.MethodPost)

	v1.HandleFunc("/session", s.handleView).Methods(http.MethodGet)
	v1.HandleFunc("/session", s.handleExit).Methods(http.MethodDelete)
	v1.HandleFunc("/session/answers", s.handleAnswer).Methods(http.MethodPost)
	v1.HandleFunc("/session/toggle", s.handleToggle).Methods(http.MethodPost)
	v1.HandleFunc("/session/submit", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/session/back", s.handleBack).Methods(http.MethodPost)
	v1.HandleFunc("/session/begin", s.handleBegin).Methods(http.MethodPost)
	v1.HandleFunc("/session/react", s.handleReact).Methods(http.MethodPost)
	return router
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := s.enrol.Home(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

func (s *Server) handleEnrol(w http.ResponseWriter, r *http.Request) {
	var src enrol.Source
	if err := decode(r, &src); err != nil {
		http.Error(w, "invalid enrolment request", http.StatusBadRequest)
		return
	}
	switch src.Kind {
	case enrol.SourceURL, enrol.SourceQR, enrol.SourceStudyID:
	default:
		http.Error(w, "kind must be url, qr or study_id", http.StatusBadRequest)
		return
	}

	ui := &enrol.UIState{}
	result, err := s.enrol.Enrol(r.Context(), src, ui)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleUnenrol(w http.ResponseWriter, r *http.Request) {
	s.session.stop(r.Context())
	if err := s.enrol.Unenrol(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(r, &req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	n, err := s.enrol.SetNotifications(r.Context(), *req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": *req.Enabled, "scheduled": n})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	all, err := s.tasks.All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if all == nil {
		all = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := strconv.Atoi(mux.Vars(r)["taskID"])
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	study, err := s.enrol.CurrentStudy(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		writeError(w, err)
		return
	}

	if task.Index >= 0 && task.Index < len(study.Modules) && study.Modules[task.Index].Type == protocol.ModulePVT {
		sess, err := pvt.Start(ctx, pvt.Deps{Study: study, Tasks: s.tasks, Uploader: s.uploader, Clock: s.clock}, taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		s.session.replacePVT(ctx, sess, s.cfg.TickInterval)
		writeJSON(w, http.StatusCreated, pvtView(sess))
		return
	}

	participant, err := s.enrol.Participant(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := survey.Start(ctx, survey.Deps{
		Study:       study,
		Tasks:       s.tasks,
		Uploader:    s.uploader,
		Clock:       s.clock,
		Participant: participant,
	}, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.session.replaceSurvey(ctx, sess)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.session.view()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.session.stop(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string       `json:"question_id"`
		Value      models.Value `json:"value"`
	}
	if err := decode(r, &req); err != nil || req.QuestionID == "" {
		http.Error(w, "question_id is required", http.StatusBadRequest)
		return
	}
	s.surveyAction(w, func(sess *survey.Session) error {
		return sess.SetAnswer(req.QuestionID, req.Value)
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
		Option     string `json:"option"`
	}
	if err := decode(r, &req); err != nil || req.QuestionID == "" {
		http.Error(w, "question_id is required", http.StatusBadRequest)
		return
	}
	s.surveyAction(w, func(sess *survey.Session) error {
		return sess.ToggleOption(req.QuestionID, req.Option)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var view interface{}
	err := s.session.withSurvey(func(sess *survey.Session) error {
		if err := sess.Submit(ctx); err != nil {
			return err
		}
		view = sess.View()
		return nil
	})
	if err == ErrNoSession {
		err = s.session.withPVT(func(sess *pvt.Session) error {
			if err := sess.Submit(ctx); err != nil {
				return err
			}
			view = pvtView(sess)
			return nil
		})
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.surveyAction(w, func(sess *survey.Session) error {
		return sess.Back(ctx)
	})
}

func (s *Server) surveyAction(w http.ResponseWriter, fn func(*survey.Session) error) {
	var view survey.View
	err := s.session.withSurvey(func(sess *survey.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		view = sess.View()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	var view PVTView
	err := s.session.withPVT(func(sess *pvt.Session) error {
		if err := sess.Begin(); err != nil {
			return err
		}
		view = pvtView(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	var result int
	var view PVTView
	err := s.session.withPVT(func(sess *pvt.Session) error {
		var err error
		if result, err = sess.React(); err != nil {
			return err
		}
		view = pvtView(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result, "session": view})
}
