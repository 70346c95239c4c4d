package server

import (
	"log/slog"
	"net/http"
)

// Config holds router options.
type Config struct {
	// AllowedOrigins lists origins echoed in CORS responses; "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig allows every origin.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter registers every endpoint on a ServeMux and wraps it in the
// middleware chain. Composition endpoints answer 202 with a job to poll.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /health", h.Health},
		{"POST /probe", h.Probe},
		{"POST /overlays", h.CreateOverlay},
		{"POST /concatenations", h.CreateConcatenation},
		{"POST /mixes", h.CreateMix},
		{"GET /jobs", h.ListJobs},
		{"GET /jobs/{id}", h.GetJob},
		{"DELETE /jobs/{id}", h.CancelJob},
	}

	mux := http.NewServeMux()
	for _, rt := range routes {
		mux.Handle(rt.pattern, rt.handler)
	}

	return ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)(mux)
}
