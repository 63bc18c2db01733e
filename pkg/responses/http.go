package responses

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/participants/{participant}/submissions", h.handleSubmissions).Methods(http.MethodGet)
	r.HandleFunc("/participants/{participant}/visits", h.handleVisits).Methods(http.MethodGet)
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Submissions(r.Context(), mux.Vars(r)["participant"], parseLimit(r, 100))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list submissions")
		http.Error(w, "failed to list submissions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func (h *Handler) handleVisits(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.PageVisits(r.Context(), mux.Vars(r)["participant"], parseLimit(r, 100))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list page visits")
		http.Error(w, "failed to list page visits", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			return v
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
