// Package handler serves the ops and read-only inspection endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matrix/internal/domain"
	"matrix/internal/middleware"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
)

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ParticipantReader is the read side of the participant service.
type ParticipantReader interface {
	Get(ctx context.Context, id int64) (*domain.Participant, error)
	Tables(ctx context.Context, id int64) ([]*domain.MatrixTable, error)
	Payouts(ctx context.Context, id int64) ([]*domain.PayoutRecord, error)
}

type Handler struct {
	participants ParticipantReader
	deps         map[string]Pinger
	logger       logger.Logger
	startTime    time.Time
}

// New builds the handler. deps are checked by /ready, keyed by name.
func New(participants ParticipantReader, deps map[string]Pinger, log logger.Logger) *Handler {
	return &Handler{
		participants: participants,
		deps:         deps,
		logger:       log,
		startTime:    time.Now(),
	}
}

func (h *Handler) Router() *mux.Router {
	mw := middleware.New(h.logger)
	r := mux.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(mw.Recover)
	r.Use(mw.Log)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/participants/{id:[0-9]+}", h.GetParticipant).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id:[0-9]+}/tables", h.GetTables).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id:[0-9]+}/payouts", h.GetPayouts).Methods(http.MethodGet)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	h.respondJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}

func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.participantID(w, r)
	if !ok {
		return
	}
	p, err := h.participants.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

func (h *Handler) GetTables(w http.ResponseWriter, r *http.Request) {
	id, ok := h.participantID(w, r)
	if !ok {
		return
	}
	tables, err := h.participants.Tables(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}

	type tableView struct {
		*domain.MatrixTable
		State domain.TableState `json:"state"`
	}
	views := make([]tableView, 0, len(tables))
	for _, t := range tables {
		views = append(views, tableView{MatrixTable: t, State: t.State()})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"tables": views})
}

func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.participantID(w, r)
	if !ok {
		return
	}
	payouts, err := h.participants.Payouts(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}
	if payouts == nil {
		payouts = []*domain.PayoutRecord{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"payouts": payouts})
}

func (h *Handler) participantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid participant ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) handleError(w http.ResponseWriter, err error, id int64) {
	if pkgerrors.Is(err, pkgerrors.ErrParticipantNotFound) {
		h.respondError(w, http.StatusNotFound, "Participant not found")
		return
	}
	h.logger.Error("Failed to read participant", map[string]interface{}{
		"participant_id": id,
		"error":          err.Error(),
	})
	h.respondError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
