package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{StatusNotStarted, StatusRunning, true},
		{StatusNotStarted, StatusCompleted, true},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusNotStarted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCancelled, StatusCancelled, true},
		{StatusRunning, RunStatus("bogus"), false},
		{RunStatus(""), StatusRunning, true},
	}
	for _, tt := range tests {
		t.Run("Should evaluate "+string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	t.Run("Should flag only completed failed and cancelled", func(t *testing.T) {
		assert.False(t, StatusNotStarted.IsTerminal())
		assert.False(t, StatusRunning.IsTerminal())
		assert.True(t, StatusCompleted.IsTerminal())
		assert.True(t, StatusFailed.IsTerminal())
		assert.True(t, StatusCancelled.IsTerminal())
	})
}

func TestParseRunStatus(t *testing.T) {
	t.Run("Should normalize server spellings", func(t *testing.T) {
		for raw, want := range map[string]RunStatus{
			"":          StatusNotStarted,
			"RUNNING":   StatusRunning,
			"completed": StatusCompleted,
			" failed ":  StatusFailed,
			"canceled":  StatusCancelled,
			"cancelled": StatusCancelled,
		} {
			got, err := ParseRunStatus(raw)
			require.NoError(t, err, raw)
			assert.Equal(t, want, got, raw)
		}
	})

	t.Run("Should reject unknown statuses", func(t *testing.T) {
		_, err := ParseRunStatus("paused")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "paused")
	})
}

func TestInvariantError(t *testing.T) {
	t.Run("Should be detectable through wrapping", func(t *testing.T) {
		err := NewInvariantError("h-1", StatusRunning, "status not terminal after stop event")
		wrapped := fmtWrap(err)
		assert.True(t, IsInvariantError(wrapped))
		assert.Contains(t, err.Error(), "h-1")
		assert.Contains(t, err.Error(), "running")
		assert.False(t, IsInvariantError(ErrNotInitialized))
	})
}

func fmtWrap(err error) error {
	return &wrapErr{err: err}
}

type wrapErr struct{ err error }

func (w *wrapErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapErr) Unwrap() error { return w.err }
