package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flinkctl/internal/jobmanager"
)

type fakeOverview struct {
	overview *jobmanager.Overview
	err      error
	calls    atomic.Int32
}

func (f *fakeOverview) Overview(context.Context) (*jobmanager.Overview, error) {
	f.calls.Add(1)
	return f.overview, f.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	assert.Equal(t, StatusHealthy, checker.Liveness(context.Background()).Status)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		source    OverviewSource
		want      Status
		wantReady bool
	}{
		{"not configured", nil, StatusUnhealthy, false},
		{"job manager down", &fakeOverview{err: errors.New("connection refused")}, StatusUnhealthy, false},
		{"no task managers", &fakeOverview{overview: &jobmanager.Overview{}}, StatusDegraded, true},
		{
			"healthy",
			&fakeOverview{overview: &jobmanager.Overview{TaskManagers: 2, SlotsTotal: 8, SlotsAvailable: 4, FlinkVersion: "1.18.1"}},
			StatusHealthy, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := NewChecker(tt.source).Readiness(context.Background())

			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, tt.wantReady, resp.IsReady())
			require.Contains(t, resp.Checks, "jobmanager")
		})
	}
}

func TestChecker_ReadinessIsCached(t *testing.T) {
	t.Parallel()
	source := &fakeOverview{overview: &jobmanager.Overview{TaskManagers: 1}}
	checker := NewChecker(source)

	checker.Readiness(context.Background())
	checker.Readiness(context.Background())

	assert.Equal(t, int32(1), source.calls.Load())
}

func TestChecker_ShuttingDown(t *testing.T) {
	t.Parallel()
	source := &fakeOverview{overview: &jobmanager.Overview{TaskManagers: 1}}
	checker := NewChecker(source)
	require.True(t, checker.Readiness(context.Background()).IsHealthy())

	checker.SetShuttingDown()
	resp := checker.Readiness(context.Background())

	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "shutdown")
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			assert.Equal(t, tt.expected, response.IsHealthy())
		})
	}
}
