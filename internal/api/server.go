package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"posync/internal/config"
	"posync/internal/connectivity"
	"posync/internal/products"
	"posync/internal/sales"
	"posync/internal/store"
	"posync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusServer exposes the sync state to the terminal UI: queue depth,
// reachability, pending badges, and a manual sync trigger.
type StatusServer struct {
	monitor   *connectivity.Monitor
	store     *store.Store
	scheduler *syncer.Scheduler
	sales     *sales.Adapter
	products  *products.Adapter
	logger    *zerolog.Logger
	server    *http.Server
}

func NewStatusServer(
	cfg config.APIConfig,
	monitoring config.MonitoringConfig,
	monitor *connectivity.Monitor,
	st *store.Store,
	scheduler *syncer.Scheduler,
	salesAdapter *sales.Adapter,
	productsAdapter *products.Adapter,
	logger *zerolog.Logger,
) *StatusServer {
	srv := &StatusServer{
		monitor:   monitor,
		store:     st,
		scheduler: scheduler,
		sales:     salesAdapter,
		products:  productsAdapter,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/healthz", srv.handleHealth)
	if monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *StatusServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("status server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("status server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	depth, err := s.store.QueueDepth(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}

	salesSummary, err := s.sales.PendingSummary(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read pending sales")
		return
	}

	changeSummary, err := s.products.ChangeSummary(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read pending changes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"online":          s.monitor.Online(),
		"syncing":         s.scheduler.Syncing(),
		"queue_depth":     depth,
		"pending_sales":   salesSummary,
		"pending_changes": changeSummary,
	})
}

func (s *StatusServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.monitor.Online() {
		writeError(w, http.StatusConflict, "remote backend is unreachable")
		return
	}

	s.scheduler.TriggerSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync triggered"})
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
