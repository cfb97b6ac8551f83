// Package server exposes the HTTP surface: send intake, provider webhooks,
// health probes and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/courier/internal/dispatch"
	"github.com/dmitrymomot/courier/pkg/health"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// Dispatcher accepts send requests. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Accepted, error)
}

// Deps are the handlers behind the router. Nil parts are not mounted, so a
// worker process can serve only health and metrics.
type Deps struct {
	Dispatcher Dispatcher
	Webhook    http.Handler
	Metrics    http.Handler
	Checks     health.Checks
	Logger     *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(cfg Config, deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := chi.NewRouter()
	r.Use(RequestID, Recover(log), AccessLog(log))

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(deps.Checks, health.WithLogger(log)))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.Dispatcher != nil {
		r.Post("/v1/emails", createEmail(deps.Dispatcher, cfg.MaxRequestBytes, log))
	}
	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/events", deps.Webhook)
		r.Method(http.MethodHead, "/webhooks/events", deps.Webhook)
	}

	return r
}

func createEmail(d Dispatcher, maxBytes int64, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}

		var req dispatch.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		accepted, err := d.Dispatch(r.Context(), req)
		switch {
		case errors.Is(err, dispatch.ErrConfiguration):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case err != nil:
			log.ErrorContext(r.Context(), "send request not enqueued",
				slog.String("event_name", req.Event), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "send request could not be queued")
		default:
			writeJSON(w, http.StatusAccepted, accepted)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
