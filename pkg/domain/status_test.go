package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleClassify(t *testing.T) {
	l := DefaultLifecycle()
	tests := []struct {
		status Status
		phase  Phase
	}{
		{StatusPending, PhaseActive},
		{StatusSubmitted, PhaseActive},
		{StatusRunning, PhaseActive},
		{StatusCancelling, PhaseActive},
		{StatusCompleted, PhaseSucceeded},
		{"completed", PhaseSucceeded},
		{StatusFailed, PhaseFailed},
		{StatusCancelled, PhaseCancelled},
		{"PAUSED", PhaseActive},
		{"", PhaseActive},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.phase, l.Classify(tt.status))
		})
	}
}

func TestLifecycleWithDefaults(t *testing.T) {
	l := Lifecycle{Failed: []Status{"FAILED", "ERROR"}}.WithDefaults()
	assert.Equal(t, []Status{StatusCompleted}, l.Succeeded)
	assert.Equal(t, PhaseFailed, l.Classify("ERROR"))
	assert.Equal(t, PhaseCancelled, l.Classify(StatusCancelled))
}

func TestStatusKnown(t *testing.T) {
	assert.True(t, StatusRunning.Known())
	assert.True(t, Status(" running ").Known())
	assert.False(t, Status("PAUSED").Known())
	assert.Equal(t, "UNKNOWN", Status("").String())
}

func TestPhaseTerminal(t *testing.T) {
	assert.False(t, PhaseActive.Terminal())
	assert.True(t, PhaseSucceeded.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.True(t, PhaseCancelled.Terminal())
	assert.Equal(t, "cancelled", PhaseCancelled.String())
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "get_details", TaskID: "t1", StatusCode: 404, Err: fmt.Errorf("%w: gone", ErrNotFound)}
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, 404, StatusCode(wrapped))
	assert.Equal(t, "get_details task t1 (http 404): not found: gone", err.Error())

	transport := &OpError{Op: "get_results", Err: fmt.Errorf("%w: reset", ErrTransport)}
	assert.True(t, IsRetryable(transport))
	assert.Zero(t, StatusCode(errors.New("plain")))
}

func TestFlinkSQLTaskYAML(t *testing.T) {
	out, err := NewFlinkSQLTask("", "SELECT 1", 0).YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "task_type: flink_sql\n")
	assert.Contains(t, out, "name: A Flink SQL\n")
	assert.Contains(t, out, "task_timeout_seconds: 30\n")
	assert.Contains(t, out, "sql: SELECT 1\n")
	assert.Contains(t, out, "parallelism: 1\n")

	_, err = NewFlinkSQLTask("x", " ", 10).YAML()
	assert.Error(t, err)
}
