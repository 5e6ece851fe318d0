package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
	"github.com/saaga0h/jeeves-anticipation/pkg/postgres"
	"github.com/saaga0h/jeeves-anticipation/pkg/redis"
)

type fakePostgres bool

func (f fakePostgres) HealthCheck(ctx context.Context) (*postgres.HealthStatus, error) {
	status := &postgres.HealthStatus{Database: "jeeves", Connected: bool(f)}
	if f {
		status.PgVector = true
	} else {
		status.Error = "ping failed: connection refused"
	}
	return status, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func serve(t *testing.T, c *Checker, path string) (int, HealthResponse) {
	t.Helper()
	mux := http.NewServeMux()
	c.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHandler_AlwaysOK(t *testing.T) {
	c := NewChecker(nil, nil, nil, nil, testLogger())
	code, resp := serve(t, c, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Services)
}

func TestDetailedHandler(t *testing.T) {
	mqttClient := mqtt.NewMockClient()
	require.NoError(t, mqttClient.Connect(context.Background()))
	redisClient := redis.NewMockClient()

	tests := []struct {
		name         string
		redisErr     error
		postgres     PostgresChecker
		wantCode     int
		wantStatus   string
		wantPostgres string
	}{
		{"all healthy", nil, fakePostgres(true), http.StatusOK, "healthy", StatusConnected},
		{"postgres down is not degraded", nil, fakePostgres(false), http.StatusOK, "healthy", StatusDisconnected},
		{"postgres disabled", nil, nil, http.StatusOK, "healthy", StatusDisabled},
		{"redis down", errors.New("refused"), fakePostgres(true), http.StatusServiceUnavailable, "degraded", StatusConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redisClient.Err = tt.redisErr
			c := NewChecker(mqttClient, redisClient, tt.postgres, func() string { return "idle" }, testLogger())

			code, resp := serve(t, c, "/health/detailed")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.NotNil(t, resp.Services)
			assert.Equal(t, tt.wantPostgres, resp.Services.Postgres)
			if tt.postgres == nil {
				assert.Nil(t, resp.Services.PostgresDetail)
			} else {
				require.NotNil(t, resp.Services.PostgresDetail)
				assert.Equal(t, "jeeves", resp.Services.PostgresDetail.Database)
				assert.Equal(t, tt.wantPostgres == StatusConnected, resp.Services.PostgresDetail.PgVector)
			}
			assert.Equal(t, "idle", resp.Services.Orchestrator)
		})
	}
}

func TestDetailedHandler_MQTTDisconnected(t *testing.T) {
	c := NewChecker(mqtt.NewMockClient(), redis.NewMockClient(), nil, nil, testLogger())
	code, resp := serve(t, c, "/health/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDisconnected, resp.Services.MQTT)
	assert.Empty(t, resp.Services.Orchestrator)
}
