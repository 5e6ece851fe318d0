package postgres

import (
	"context"
	"database/sql"
)

// Execer runs statements that return no rows. The journal writer and schema
// setup only need this much.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Querier runs statements that return rows, e.g. vector similarity search
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Client is the Postgres connection used by the journal and knowledge store.
// Postgres is optional for the agent, so callers check IsConnected or
// HealthCheck rather than assuming a live pool.
type Client interface {
	Execer
	Querier

	Connect(ctx context.Context) error
	Disconnect() error

	// IsConnected reports whether Connect succeeded and Disconnect has not been called
	IsConnected() bool

	// HealthCheck pings the server and reports what the agent relies on
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
