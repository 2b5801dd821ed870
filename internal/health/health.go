// Package health exposes the liveness/readiness HTTP endpoints cmd/pipeline
// serves alongside its schedulers, checked by container orchestration.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/adapters/database"
	redisAdapter "github.com/kieranvance/pulsetrader/internal/adapters/redis"
	"github.com/kieranvance/pulsetrader/pkg/logger"
)

// Server serves /health and /ready for K8s liveness/readiness probes.
type Server struct {
	server    *http.Server
	db        *database.DB
	redis     *redisAdapter.Client
	ready     bool
	readyMu   sync.RWMutex
	startTime time.Time
}

// HealthStatus is the liveness probe's response body.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus is the readiness probe's response body.
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewServer wires the health endpoints against db and redis.
func NewServer(port string, db *database.DB, redis *redisAdapter.Client) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		db:        db,
		redis:     redis,
		startTime: time.Now(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReadiness)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)

	return s
}

// Start blocks serving the health endpoints until Stop is called.
func (s *Server) Start() error {
	logger.Info("health check server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping health check server")
	return s.server.Shutdown(ctx)
}

// SetReady flips the readiness flag, e.g. once startup has finished loading
// the strategy registry and the first scheduler tick is armed.
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready = ready
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks = s.dependencyChecks()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks := s.dependencyChecks()
	allHealthy := true
	for _, v := range checks {
		if v != "healthy" {
			allHealthy = false
			break
		}
	}

	status := ReadinessStatus{
		Ready:     ready && allHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) dependencyChecks() map[string]string {
	checks := make(map[string]string, 2)
	if err := s.db.Health(); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}
	if err := s.redis.Health(); err != nil {
		checks["redis"] = "unhealthy: " + err.Error()
	} else {
		checks["redis"] = "healthy"
	}
	return checks
}
