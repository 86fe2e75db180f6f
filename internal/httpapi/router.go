// Package httpapi exposes the Query Surface: BBO snapshot, full market
// export, live SSE streaming, and health/readiness/metrics endpoints, routed
// with go-chi/chi and go-chi/cors.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"mbobook/internal/hub"
	"mbobook/internal/market"
	"mbobook/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server holds everything the Query Surface's handlers need.
type Server struct {
	market *market.Market
	hub    *hub.Hub
	log    zerolog.Logger

	ready func() bool
}

// New constructs the chi router. ready reports whether /ready should answer
// 200 (DB open, feed decoder ready); it is polled on every /ready request.
func New(m *market.Market, h *hub.Hub, logger zerolog.Logger, ready func() bool) http.Handler {
	s := &Server{market: m, hub: h, log: logger.With().Str("component", "httpapi").Logger(), ready: ready}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/market", func(r chi.Router) {
		r.Get("/bbo", s.handleBBO)
		r.Get("/export", s.handleExport)
	})
	r.Route("/api/mbo/stream/json", func(r chi.Router) {
		r.Get("/", s.handleStream)
		r.Get("/{rate}", s.handleStream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed on this route")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// requestLogger logs each request at structured, per-request zerolog
// fields and records it in the HTTP request metrics.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).Inc()
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
