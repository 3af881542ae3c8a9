package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flinkctl/internal/apperrors"
	"flinkctl/pkg/backoff"
)

// sleepRecorder captures requested delays without waiting.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

// pendingFor reports pending for k attempts, then done with v.
func pendingFor(k int, v string, calls *int) Check[string] {
	return func(_ context.Context, attempt int) (string, bool, error) {
		*calls++
		if attempt <= k {
			return "", false, nil
		}
		return v, true, nil
	}
}

func TestUntil_CompletesAfterPending(t *testing.T) {
	t.Parallel()
	for _, k := range []int{0, 1, 5, 19} {
		rec := &sleepRecorder{}
		calls := 0

		got, err := Until(context.Background(), Config{Sleep: rec.sleep}, "savepoint", pendingFor(k, "/sp/1", &calls))

		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, "/sp/1", got)
		assert.Equal(t, k+1, calls)
		assert.Len(t, rec.delays, k, "k=%d: one sleep per pending attempt", k)
	}
}

func TestUntil_ExhaustsBudget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		maxRetries int
		want       int
	}{
		{"default budget", 0, 20},
		{"custom budget", 3, 3},
		{"single attempt", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &sleepRecorder{}
			calls := 0

			_, err := Until(context.Background(), Config{MaxRetries: tt.maxRetries, Sleep: rec.sleep}, "job termination",
				pendingFor(1000, "", &calls))

			assert.ErrorIs(t, err, apperrors.ErrMaxRetriesExceeded)
			assert.Contains(t, err.Error(), "job termination")
			assert.Equal(t, tt.want, calls)
			assert.Len(t, rec.delays, tt.want-1, "no sleep after the final attempt")
		})
	}
}

func TestUntil_CheckErrorStopsImmediately(t *testing.T) {
	t.Parallel()
	rec := &sleepRecorder{}
	calls := 0
	failure := apperrors.SavepointFailed("j1", "boom")

	_, err := Until(context.Background(), Config{Sleep: rec.sleep}, "savepoint", func(_ context.Context, attempt int) (string, bool, error) {
		calls++
		if attempt == 2 {
			return "", false, failure
		}
		return "", false, nil
	})

	assert.ErrorIs(t, err, apperrors.ErrSavepointFailed)
	assert.Equal(t, 2, calls)
	assert.Len(t, rec.delays, 1)
}

func TestUntil_DefaultIntervalAndBackoff(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	calls := 0
	_, _ = Until(context.Background(), Config{MaxRetries: 3, Sleep: rec.sleep}, "x", pendingFor(10, "", &calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.delays)

	rec = &sleepRecorder{}
	calls = 0
	cfg := Config{MaxRetries: 4, Sleep: rec.sleep, Backoff: backoff.Config{Initial: time.Second, Max: 3 * time.Second}}
	_, _ = Until(context.Background(), cfg, "x", pendingFor(10, "", &calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, rec.delays)
}

func TestUntil_ContextCancelledDuringSleep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, Config{Interval: time.Hour}, "savepoint", pendingFor(1000, "", &calls))

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestUntil_CancelledContextSkipsCheck(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Until(ctx, Config{}, "savepoint", pendingFor(0, "v", &calls))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, backoff.Constant(2*time.Second), cfg.Backoff)
}
