package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"queue-wait-monitor/internal/config"
	"queue-wait-monitor/internal/service"
)

// Server exposes the ingestion and query interface over HTTP.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// New wires the handler set onto a configured http.Server.
func New(cfg *config.Config, svc *service.Service, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	componentLogger := logger.With().Str("component", "server").Logger()
	h := newHandler(svc, cfg.App.DefaultCounter, componentLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.handlePostEvent)
	mux.HandleFunc("/status", h.handleGetStatus)
	mux.HandleFunc("/display", h.handleGetDisplay)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      loggingMiddleware(mux, componentLogger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: componentLogger}
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}
