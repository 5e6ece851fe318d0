package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
	"github.com/saaga0h/jeeves-anticipation/pkg/postgres"
	"github.com/saaga0h/jeeves-anticipation/pkg/redis"
)

// pingTimeout bounds each dependency probe of the detailed check
const pingTimeout = 500 * time.Millisecond

// Status values reported per dependency
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
)

// PostgresChecker is the part of the postgres client the checker needs
type PostgresChecker interface {
	HealthCheck(ctx context.Context) (*postgres.HealthStatus, error)
}

// StateFunc reports the state of an in-process component
type StateFunc func() string

// Checker provides health check functionality for agents
type Checker struct {
	mqtt         mqtt.Client
	redis        redis.Client
	postgres     PostgresChecker
	orchestrator StateFunc
	logger       *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies.
// postgres and orchestrator may be nil when the agent runs without them.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, postgres PostgresChecker, orchestrator StateFunc, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:         mqttClient,
		redis:        redisClient,
		postgres:     postgres,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis        string `json:"redis"`
	MQTT         string `json:"mqtt"`
	Postgres     string `json:"postgres"`
	Orchestrator string `json:"orchestrator,omitempty"`

	PostgresDetail *postgres.HealthStatus `json:"postgres_detail,omitempty"`
}

// Register adds /health and /health/detailed to mux
func (h *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandlerFunc())
	mux.HandleFunc("GET /health/detailed", h.DetailedHandlerFunc())
}

// HandlerFunc returns 200 if the process is alive without checking dependencies.
// This keeps the health check fast for Nomad/Consul.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc returns a handler that checks all dependencies
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := h.check(r.Context())

		status := "healthy"
		statusCode := http.StatusOK

		// postgres only backs the journal and knowledge lookups, losing it degrades nothing critical
		if services.Redis == StatusDisconnected || services.MQTT == StatusDisconnected {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

func (h *Checker) check(ctx context.Context) *Services {
	services := &Services{
		Redis:    StatusDisconnected,
		MQTT:     StatusDisconnected,
		Postgres: StatusDisabled,
	}

	if h.mqtt != nil && h.mqtt.IsConnected() {
		services.MQTT = StatusConnected
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn("Redis ping failed", "error", err)
		} else {
			services.Redis = StatusConnected
		}
	}

	if h.postgres != nil {
		services.Postgres = StatusDisconnected
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		status, err := h.postgres.HealthCheck(ctx)
		if err != nil {
			h.logger.Warn("Postgres health check failed", "error", err)
		}
		if status != nil {
			services.PostgresDetail = status
			if status.Connected {
				services.Postgres = StatusConnected
			}
		}
	}

	if h.orchestrator != nil {
		services.Orchestrator = h.orchestrator()
	}

	return services
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
