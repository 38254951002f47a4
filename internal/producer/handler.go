package producer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicsignal/report-pipeline/internal/domain"
)

// Handler exposes the submission API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler for the producer service.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Router builds the producer's route table.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/reports", h.submitReport)
	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type submitResponse struct {
	ReportID string `json:"report_id"`
	Accepted bool   `json:"accepted"`
	Mode     string `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	report, err := h.service.Submit(r.Context(), sub)
	if err != nil {
		var invalid *domain.InvalidReportError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Reason, Field: invalid.Field})
			return
		}
		h.logger.Error("submission delivery failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "report could not be delivered, retry later"})
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		ReportID: report.ReportID,
		Accepted: true,
		Mode:     string(h.service.Mode()),
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
