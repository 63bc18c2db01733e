package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/enrol"
	"github.com/synaptica-ai/studyrunner/pkg/pvt"
	"github.com/synaptica-ai/studyrunner/pkg/survey"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

// writeError maps engine and enrolment errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var verr *survey.ValidationError
	var eerr *enrol.EnrolError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body.Missing = verr.Missing
	case errors.As(err, &eerr):
		status = http.StatusUnprocessableEntity
		if eerr.Network && !eerr.Malformed {
			status = http.StatusBadGateway
		}
		body.Message = eerr.Message()
	case errors.Is(err, survey.ErrTaskNotFound), errors.Is(err, pvt.ErrTaskNotFound),
		errors.Is(err, tasks.ErrNotFound), errors.Is(err, ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, survey.ErrTaskUnavailable), errors.Is(err, pvt.ErrTaskUnavailable),
		errors.Is(err, survey.ErrNotActive), errors.Is(err, pvt.ErrWrongPhase),
		errors.Is(err, enrol.ErrAlreadyEnrolled), errors.Is(err, enrol.ErrNotEnrolled):
		status = http.StatusConflict
	case errors.Is(err, survey.ErrUnknownQuestion), errors.Is(err, survey.ErrNotAnswerable),
		errors.Is(err, survey.ErrUnknownOption), errors.Is(err, survey.ErrWrongModuleType),
		errors.Is(err, pvt.ErrWrongModuleType):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
