package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nwdaf-lab/hermes/internal/agent"
	"github.com/nwdaf-lab/hermes/internal/engine"
	"github.com/nwdaf-lab/hermes/internal/models"
)

const maxBodyBytes = 16 << 20

// NotificationHandler is the agent behaviour exposed over HTTP.
type NotificationHandler interface {
	Name() string
	Categories() []string
	HandleNotification(ctx context.Context, category string, n models.Notification) (agent.Result, error)
}

// Ingester is the engine behaviour exposed over HTTP.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (engine.ReceiveResult, error)
}

// ReadinessCheck reports whether a dependency the router needs is reachable.
type ReadinessCheck func(ctx context.Context) error

func newRouter(logger *slog.Logger, recoverer func(http.Handler) http.Handler, ready ReadinessCheck) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// NewAgentRouter mounts one notification callback per agent category.
func NewAgentRouter(h NotificationHandler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := newRouter(logger, Recoverer(logger, http.StatusUnprocessableEntity, "Invalid notification format"), nil)
	for _, category := range h.Categories() {
		r.Post(agent.NotificationPath(category), notificationHandler(h, category, logger))
	}
	return r
}

func notificationHandler(h NotificationHandler, category string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			respondDetail(w, http.StatusUnprocessableEntity, "Invalid notification format")
			return
		}
		n, err := agent.DecodeNotification(body)
		if err != nil {
			logger.Warn("rejected notification", "agent", h.Name(), "category", category, "error", err)
			respondDetail(w, http.StatusUnprocessableEntity, "Invalid notification format")
			return
		}
		result, err := h.HandleNotification(r.Context(), category, n)
		if err != nil {
			logger.Error("notification handling failed", "agent", h.Name(), "category", category, "error", err)
			respondDetail(w, http.StatusUnprocessableEntity, "Invalid notification format")
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

// NewEngineRouter mounts the engine ingestion endpoints. A non-nil ready check
// gates /healthz.
func NewEngineRouter(ingester Ingester, ready ReadinessCheck, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := newRouter(logger, Recoverer(logger, http.StatusInternalServerError, "Internal error"), ready)
	handler := receiveHandler(ingester, logger)
	r.Post("/receive_shared_data", handler)
	r.Post("/receive", handler)
	return r
}

func receiveHandler(ingester Ingester, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			respondDetail(w, http.StatusUnprocessableEntity, "Invalid event format")
			return
		}
		result, err := ingester.Ingest(r.Context(), body)
		if err != nil {
			if errors.Is(err, engine.ErrInvalidEvent) {
				respondDetail(w, http.StatusUnprocessableEntity, "Invalid event format")
				return
			}
			logger.Error("receive failed", "error", err)
			respondDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":       "success",
			"eventId":      result.EventID,
			"correlations": len(result.Correlations),
		})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
