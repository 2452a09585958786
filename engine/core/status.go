package core

import (
	"fmt"
	"strings"
)

// RunStatus is the lifecycle state of one workflow execution.
type RunStatus string

const (
	StatusNotStarted RunStatus = "not_started"
	StatusRunning    RunStatus = "running"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
)

func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s RunStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces not_started -> running -> terminal. Staying in the
// same state is always allowed and a terminal state never changes.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case "", StatusNotStarted:
		return true
	case StatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseRunStatus normalizes a status reported by the server.
func ParseRunStatus(raw string) (RunStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "", "not_started", "pending":
		return StatusNotStarted, nil
	case "running":
		return StatusRunning, nil
	case "completed", "success":
		return StatusCompleted, nil
	case "failed", "error":
		return StatusFailed, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown run status %q", raw)
	}
}
