package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	assert := require.New(t)
	checker := NewChecker()
	loaded := false
	checker.Register("index", Condition(func() bool { return loaded }, "index loaded", "no index loaded"))
	checker.Register("redis", Optional(func(context.Context) error { return errors.New("dial tcp: refused") }))

	report := checker.Run(context.Background())
	assert.Equal(StatusDown, report.Status)
	assert.Equal("no index loaded", report.Components["index"].Message)
	assert.Equal(StatusDegraded, report.Components["redis"].Status)

	loaded = true
	report = checker.Run(context.Background())
	assert.Equal(StatusDegraded, report.Status)
	assert.Equal(StatusUp, report.Components["index"].Status)
}

func TestOptionalNotConfigured(t *testing.T) {
	got := Optional(nil)(context.Background())
	require.Equal(t, StatusDegraded, got.Status)
	require.Equal(t, "not configured", got.Message)
}

func TestReadyHandler(t *testing.T) {
	assert := require.New(t)
	ready := false
	checker := NewChecker()
	checker.Register("index", Condition(func() bool { return ready }, "", "no index loaded"))

	rec := httptest.NewRecorder()
	checker.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	checker.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(http.StatusOK, rec.Code)
	var report Report
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(StatusUp, report.Status)

	rec = httptest.NewRecorder()
	checker.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(http.StatusOK, rec.Code)
}
