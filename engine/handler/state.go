package handler

import (
	"fmt"
	"time"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
)

// State is the observable view of one workflow execution.
type State struct {
	HandlerID    string              `json:"handler_id"`
	WorkflowName string              `json:"workflow_name"`
	RunID        string              `json:"run_id,omitempty"`
	Status       core.RunStatus      `json:"status"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	UpdatedAt    *time.Time          `json:"updated_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	Error        string              `json:"error,omitempty"`
	Result       *core.WorkflowEvent `json:"result,omitempty"`
	Loading      bool                `json:"loading"`
	LoadingError string              `json:"loading_error,omitempty"`
}

// NewState returns the placeholder state for a handler known only by id.
func NewState(handlerID string) State {
	return State{HandlerID: handlerID, Status: core.StatusNotStarted}
}

// StateFromHandler converts a server record into domain state.
func StateFromHandler(h client.Handler) (State, error) {
	status, err := core.ParseRunStatus(h.Status)
	if err != nil {
		return State{}, fmt.Errorf("handler %s: %w", h.HandlerID, err)
	}
	st := State{
		HandlerID:    h.HandlerID,
		WorkflowName: h.WorkflowName,
		RunID:        h.RunID,
		Status:       status,
		Error:        h.Error,
		Result:       core.FromEnvelope(h.Result),
	}
	if st.StartedAt, err = core.ParseTimestamp(h.StartedAt); err != nil {
		return State{}, fmt.Errorf("handler %s started_at: %w", h.HandlerID, err)
	}
	if st.UpdatedAt, err = core.ParseTimestamp(h.UpdatedAt); err != nil {
		return State{}, fmt.Errorf("handler %s updated_at: %w", h.HandlerID, err)
	}
	if st.CompletedAt, err = core.ParseTimestamp(h.CompletedAt); err != nil {
		return State{}, fmt.Errorf("handler %s completed_at: %w", h.HandlerID, err)
	}
	st.normalize()
	return st, nil
}

// IsTerminal reports whether the execution finished.
func (s State) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// normalize keeps the result only on completed executions and the error
// only on failed ones.
func (s *State) normalize() {
	if s.Status != core.StatusCompleted {
		s.Result = nil
	}
	if s.Status != core.StatusFailed {
		s.Error = ""
	}
}

// merge applies server-derived fields of next onto s. Timestamps the server
// omits keep their local value. Lifecycle fields only move forward: a
// terminal state keeps its status, result, error and completion time.
// Loading fields are left alone.
func (s *State) merge(next State) {
	if s.HandlerID == "" {
		s.HandlerID = next.HandlerID
	}
	if next.WorkflowName != "" {
		s.WorkflowName = next.WorkflowName
	}
	if next.RunID != "" {
		s.RunID = next.RunID
	}
	if next.StartedAt != nil {
		s.StartedAt = next.StartedAt
	}
	if next.UpdatedAt != nil {
		s.UpdatedAt = next.UpdatedAt
	}
	if s.Status.CanTransitionTo(next.Status) {
		s.Status = next.Status
		s.CompletedAt = next.CompletedAt
		s.Error = next.Error
		s.Result = next.Result
	}
	s.normalize()
}
