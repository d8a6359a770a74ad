// Package api exposes checkout link construction and postback intake over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/checkout-router/internal/adapters"
	"github.com/ignite/checkout-router/internal/pkg/distlock"
	"github.com/ignite/checkout-router/internal/pkg/logger"
	"github.com/ignite/checkout-router/internal/sinks"
)

// DefaultDedupeTTL is how long a delivered postback blocks replays.
const DefaultDedupeTTL = 72 * time.Hour

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	factory   *adapters.Factory
	sink      sinks.Sink
	locker    distlock.Locker
	dedupeTTL time.Duration
}

// Options configures Handlers.
type Options struct {
	Factory *adapters.Factory
	// Sink receives every accepted postback. Nil discards them after logging.
	Sink sinks.Sink
	// Locker dedupes replayed postbacks. Nil disables dedupe.
	Locker    distlock.Locker
	DedupeTTL time.Duration
}

// NewHandlers creates Handlers.
func NewHandlers(opts Options) *Handlers {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = DefaultDedupeTTL
	}
	return &Handlers{
		factory:   opts.Factory,
		sink:      opts.Sink,
		locker:    opts.Locker,
		dedupeTTL: opts.DedupeTTL,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
