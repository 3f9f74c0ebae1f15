package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_AllUp(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hc := NewHealthChecker(db, rdb, pingFunc(func(context.Context) error { return nil }))
	h := SetupRoutes(NewHandlers(nil, nil), hc, nil)

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["duckdb"].Status)

	rec = doRequest(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	h := SetupRoutes(NewHandlers(nil, nil), NewHealthChecker(db, nil, nil), nil)

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rec)["status"])

	rec = doRequest(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["ready"])
}

func TestHealth_Liveness(t *testing.T) {
	h := SetupRoutes(NewHandlers(nil, nil), nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decodeBody(t, rec)["status"])
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: notConfigured},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"duckdb":   {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(2*time.Minute+5*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
