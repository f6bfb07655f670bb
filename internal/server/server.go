package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/covrun/pkg/tracing"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr      string
	RateLimit float64 // requests per second per client; 0 disables limiting
	Burst     int
	// Auth, when set, guards everything but /health and /metrics.
	Auth *KeyAuth
}

// NewRouter builds the routed, traced, authenticated and rate-limited API.
// provider may be nil.
func NewRouter(h *Handler, cfg Config, provider *tracing.Provider) (*mux.Router, *Limiter) {
	router := mux.NewRouter()
	if provider != nil {
		router.Use(tracing.HTTPMiddleware(provider, routeTemplate))
	}
	if cfg.Auth != nil {
		router.Use(cfg.Auth.Middleware("/health", "/metrics"))
	}

	var limiter *Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = NewLimiter(cfg.RateLimit, burst)
		router.Use(limiter.Middleware(IPKeyFunc))
	}

	h.RegisterRoutes(router)
	return router, limiter
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}

// NewServer wraps the router in an http.Server. Write timeout covers a
// whole instrumentation run.
func NewServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}
