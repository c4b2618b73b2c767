package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfotel "github.com/Strob0t/spawnrelay/internal/adapter/otel"
	"github.com/Strob0t/spawnrelay/internal/middleware"
)

// MountRoutes registers the producer routes on r.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Post("/spawn", h.HandleSpawn)
	r.Get("/health", h.Health)
}

// ProducerOptions configures the producer middleware stack.
type ProducerOptions struct {
	ServiceName string
	// Timeout bounds each request; zero disables it.
	Timeout time.Duration
	// Limiter, when set, rate limits producers by remote host.
	Limiter *middleware.RateLimiter
}

// NewProducerRouter builds the producer listener's router with the standard
// middleware stack.
func NewProducerRouter(h *Handlers, opts ProducerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Handler)
	}
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(cfotel.HTTPMiddleware(opts.ServiceName))
	r.Use(chimw.Recoverer)
	if opts.Timeout > 0 {
		r.Use(chimw.Timeout(opts.Timeout))
	}
	MountRoutes(r, h)
	return r
}

// NewSubscriberRouter routes the subscriber listener to ws. A path of "" or
// "/" accepts the upgrade on any path.
func NewSubscriberRouter(path string, ws http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	if path == "" || path == "/" {
		r.HandleFunc("/*", ws)
	} else {
		r.HandleFunc(path, ws)
	}
	return r
}
