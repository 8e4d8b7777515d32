// Package api serves health, metrics and per-vessel diagnostics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saviobatista/seatime-logger/internal/ais"
	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/movement"
	"github.com/saviobatista/seatime-logger/internal/registry"
	"github.com/saviobatista/seatime-logger/internal/scheduler"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// RecentChecksLimit is how many checks the checks endpoint returns
const RecentChecksLimit = 50

// CheckReader reads stored position checks
type CheckReader interface {
	GetRecentPositionChecks(ctx context.Context, vesselID string, limit int) ([]types.PositionCheck, error)
	GetPositionChecksSince(ctx context.Context, vesselID string, since time.Time) ([]types.PositionCheck, error)
}

// PollCache reads cached poll diagnostics
type PollCache interface {
	GetLatestPosition(ctx context.Context, vesselID string) (*types.PositionCheck, error)
	GetPollFailure(ctx context.Context, vesselID string) (*types.PollFailure, error)
}

// ManualChecker runs an on-demand check
type ManualChecker interface {
	Check(ctx context.Context, vesselID string) (*scheduler.ManualResult, error)
}

// CallLog reads recent provider calls
type CallLog interface {
	Recent(ctx context.Context, mmsi string, limit int64) ([]types.APICallLog, error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Deps are the server's collaborators. Cache, Manual, Calls and Gatherer
// may be nil.
type Deps struct {
	Checks   CheckReader
	Cache    PollCache
	Manual   ManualChecker
	Calls    CallLog
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
}

// Server is the diagnostic HTTP API
type Server struct {
	deps Deps
	log  logger.Logger
	now  func() time.Time
}

// NewServer creates a Server
func NewServer(deps Deps, log logger.Logger) *Server {
	return &Server{deps: deps, log: log, now: time.Now}
}

// Router returns the configured chi router
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/vessels/{id}", func(r chi.Router) {
		r.Get("/checks", s.handleRecentChecks)
		r.Get("/analysis", s.handleAnalysis)
		r.Post("/check", s.handleManualCheck)
	})
	if s.deps.Calls != nil {
		r.Get("/api/v1/ais/calls/{mmsi}", s.handleRecentCalls)
	}

	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Diagnostic API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps.Health))
	for name := range s.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.deps.Health[name](r.Context()); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": results,
	})
}

// ChecksResponse is the body of the recent checks endpoint
type ChecksResponse struct {
	VesselID    string                `json:"vessel_id"`
	Checks      []types.PositionCheck `json:"checks"`
	Latest      *types.PositionCheck  `json:"latest,omitempty"`
	LastFailure *types.PollFailure    `json:"last_failure,omitempty"`
}

func (s *Server) handleRecentChecks(w http.ResponseWriter, r *http.Request) {
	vesselID := chi.URLParam(r, "id")

	checks, err := s.deps.Checks.GetRecentPositionChecks(r.Context(), vesselID, RecentChecksLimit)
	if err != nil {
		s.log.Error("Failed to load checks", "vessel_id", vesselID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load checks")
		return
	}
	if checks == nil {
		checks = []types.PositionCheck{}
	}

	resp := ChecksResponse{VesselID: vesselID, Checks: checks}
	if s.deps.Cache != nil {
		if latest, err := s.deps.Cache.GetLatestPosition(r.Context(), vesselID); err == nil {
			resp.Latest = latest
		} else {
			s.log.Warn("Failed to read cached position", "vessel_id", vesselID, "error", err)
		}
		if failure, err := s.deps.Cache.GetPollFailure(r.Context(), vesselID); err == nil {
			resp.LastFailure = failure
		} else {
			s.log.Warn("Failed to read poll failure", "vessel_id", vesselID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	vesselID := chi.URLParam(r, "id")
	asOf := s.now()

	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be RFC3339")
			return
		}
		asOf = t
	}

	checks, err := s.deps.Checks.GetPositionChecksSince(r.Context(), vesselID, asOf.Add(-movement.Lookback))
	if err != nil {
		s.log.Error("Failed to load checks", "vessel_id", vesselID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load checks")
		return
	}

	writeJSON(w, http.StatusOK, movement.Analyze(checks, asOf))
}

func (s *Server) handleManualCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Manual == nil {
		writeError(w, http.StatusNotImplemented, "manual checks are disabled")
		return
	}

	vesselID := chi.URLParam(r, "id")
	res, err := s.deps.Manual.Check(r.Context(), vesselID)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("Manual check failed", "vessel_id", vesselID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	mmsi := chi.URLParam(r, "mmsi")

	calls, err := s.deps.Calls.Recent(r.Context(), mmsi, RecentChecksLimit)
	if err != nil {
		s.log.Error("Failed to load provider calls", "mmsi", mmsi, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load provider calls")
		return
	}
	if calls == nil {
		calls = []types.APICallLog{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"mmsi": mmsi, "calls": calls})
}

// statusFor maps check errors to HTTP status codes
func statusFor(err error) int {
	if errors.Is(err, registry.ErrVesselNotFound) {
		return http.StatusNotFound
	}
	switch ais.KindOf(err) {
	case ais.KindNotFound:
		return http.StatusNotFound
	case ais.KindRateLimited:
		return http.StatusTooManyRequests
	case ais.KindUnauthorized, ais.KindInvalidResponse:
		return http.StatusBadGateway
	case ais.KindTransport, ais.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
