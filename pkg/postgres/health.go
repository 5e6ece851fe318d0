package postgres

import (
	"context"
	"time"
)

// HealthStatus is the Postgres section of the detailed health report
type HealthStatus struct {
	Connected bool    `json:"connected"`
	Database  string  `json:"database"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	// PgVector reports whether the vector extension used for knowledge search is installed
	PgVector bool   `json:"pgvector"`
	Error    string `json:"error,omitempty"`
}

const vectorExtensionQuery = `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`

// HealthCheck pings the pool and checks for the pgvector extension.
// Failures are reported in the status; the error return is reserved for
// a cancelled context.
func (c *PostgresClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Database: c.config.PostgresDB}

	db, err := c.conn()
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		if ctx.Err() != nil {
			return status, ctx.Err()
		}
		status.Error = "ping failed: " + err.Error()
		return status, nil
	}
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	status.Connected = true

	if err := db.QueryRowContext(ctx, vectorExtensionQuery).Scan(&status.PgVector); err != nil {
		c.logger.Debug("pgvector check failed", "error", err)
	}

	return status, nil
}
