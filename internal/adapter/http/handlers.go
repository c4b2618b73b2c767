package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/spawnrelay/internal/domain/event"
	"github.com/Strob0t/spawnrelay/internal/logger"
	"github.com/Strob0t/spawnrelay/internal/port/broadcast"
	"github.com/Strob0t/spawnrelay/internal/service"
)

// NATS connection states reported by the health endpoint.
const (
	NATSDisabled     = "disabled"
	NATSConnected    = "connected"
	NATSDisconnected = "disconnected"
)

// Handlers holds the dependencies of the producer endpoints.
type Handlers struct {
	Relay         broadcast.Broadcaster
	AwaitDelivery bool
	BodyLimit     int64
	// NATSStatus reports the queue ingress state. Nil means disabled.
	NATSStatus func() string
}

// HandleSpawn handles POST /spawn. The body must be a single JSON object;
// it is forwarded verbatim to every connected subscriber.
func (h *Handlers) HandleSpawn(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), slog.Default())
	start := time.Now()

	body := http.MaxBytesReader(w, r.Body, h.BodyLimit)
	ev, err := event.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			log.Warn("spawn payload too large", "limit", tooLarge.Limit)
			writeText(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		case errors.Is(err, event.ErrNotObject):
			log.Warn("spawn payload rejected", "error", err)
			writeText(w, http.StatusBadRequest, msgNotObject)
		case errors.Is(err, event.ErrInvalidJSON):
			log.Warn("spawn payload rejected", "error", err)
			writeText(w, http.StatusBadRequest, msgInvalidJSON)
		default:
			log.Error("spawn payload read failed", "error", err)
			writeText(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	if ev.Type() == "" {
		log.Warn("spawn event has no type field")
	}

	dispatch := h.Relay.Enqueue
	if h.AwaitDelivery {
		dispatch = h.Relay.Broadcast
	}
	if err := dispatch(r.Context(), ev); err != nil {
		switch {
		case errors.Is(err, service.ErrRelayClosed):
			log.Warn("spawn event refused, relay closed")
			writeText(w, http.StatusServiceUnavailable, msgNotAvailable)
		case errors.Is(err, context.DeadlineExceeded):
			// The Timeout middleware owns the response once the deadline passes.
			log.Warn("spawn dispatch timed out", "event_type", ev.Type())
		case errors.Is(err, context.Canceled):
			log.Info("spawn producer disconnected", "event_type", ev.Type())
		default:
			log.Error("spawn dispatch failed", "event_type", ev.Type(), "error", err)
			writeText(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	log.Info("spawn event broadcast",
		"event_type", ev.Type(),
		"connections", h.Relay.ConnectionCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeText(w, http.StatusOK, msgOK)
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	NATS        string `json:"nats"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := NATSDisabled
	if h.NATSStatus != nil {
		status = h.NATSStatus()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: h.Relay.ConnectionCount(),
		NATS:        status,
	})
}
