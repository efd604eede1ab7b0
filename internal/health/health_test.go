package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *Handler) (int, Response) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func passing(context.Context) error { return nil }

func TestHandler_StatusAggregation(t *testing.T) {
	cases := []struct {
		name     string
		checkers map[string]Checker
		want     Status
		code     int
	}{
		{name: "no checks", want: StatusHealthy, code: http.StatusOK},
		{
			name:     "all healthy",
			checkers: map[string]Checker{"storage": NewSimpleChecker("storage", passing)},
			want:     StatusHealthy,
			code:     http.StatusOK,
		},
		{
			name: "degraded catalog",
			checkers: map[string]Checker{
				"storage": NewSimpleChecker("storage", passing),
				"catalog": NewDegradedChecker("catalog", func() string { return "circuit open" }),
			},
			want: StatusDegraded,
			code: http.StatusOK,
		},
		{
			name: "unhealthy wins over degraded",
			checkers: map[string]Checker{
				"storage": NewSimpleChecker("storage", func(context.Context) error { return errors.New("down") }),
				"catalog": NewDegradedChecker("catalog", func() string { return "circuit open" }),
			},
			want: StatusUnhealthy,
			code: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler("v1.2.0")
			for name, c := range tc.checkers {
				h.RegisterChecker(name, c)
			}

			code, resp := serveHealth(t, h)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.want, resp.Status)
			assert.Equal(t, "v1.2.0", resp.Version)
			assert.Len(t, resp.Checks, len(tc.checkers))
			assert.Equal(t, tc.want != StatusUnhealthy, h.Ready(context.Background()))
		})
	}
}

func TestHandler_RunsChecksConcurrentlyWithinTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.checkTimeout = 50 * time.Millisecond

	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.RegisterChecker("a", NewSimpleChecker("a", slow))
	h.RegisterChecker("b", NewSimpleChecker("b", slow))

	started := time.Now()
	resp := h.Evaluate(context.Background())

	assert.Less(t, time.Since(started), 90*time.Millisecond, "checks must share one deadline")
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["a"].Message, "deadline exceeded")
}

func TestProbeHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	h := NewHandler("dev")
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	h.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error { return errors.New("refused") }))
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", rec.Body.String())
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("storage", stubPinger{}).Check(context.Background())
	assert.Equal(t, Check{Name: "storage", Status: StatusHealthy, DurationMs: ok.DurationMs, Duration: ok.Duration}, ok)

	failed := NewPingChecker("storage", stubPinger{err: errors.New("connection refused")}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, failed.Status)
	assert.Equal(t, "connection refused", failed.Message)
}

func TestSimpleChecker_MeasuresDuration(t *testing.T) {
	check := NewSimpleChecker("slow", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check(context.Background())

	assert.Equal(t, StatusHealthy, check.Status)
	assert.GreaterOrEqual(t, check.Duration, 10*time.Millisecond)
}

func TestDegradedChecker_Recovers(t *testing.T) {
	reason := "circuit open"
	checker := NewDegradedChecker("catalog", func() string { return reason })

	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)

	reason = ""
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)
}
