package client

import "github.com/compozy/workflowkit/engine/core"

// Handler is the server representation of one workflow execution.
type Handler struct {
	HandlerID    string              `json:"handler_id"`
	WorkflowName string              `json:"workflow_name"`
	RunID        string              `json:"run_id,omitempty"`
	Status       string              `json:"status"`
	StartedAt    string              `json:"started_at,omitempty"`
	UpdatedAt    string              `json:"updated_at,omitempty"`
	CompletedAt  string              `json:"completed_at,omitempty"`
	Error        string              `json:"error,omitempty"`
	Result       *core.WorkflowEvent `json:"result,omitempty"`
}

// HandlerFilter narrows ListHandlers results. Empty slices match everything.
type HandlerFilter struct {
	WorkflowNames []string
	Statuses      []string
}

// RunRequest starts a workflow execution.
type RunRequest struct {
	StartEvent map[string]any `json:"start_event,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	HandlerID  string         `json:"handler_id,omitempty"`
}

// SendEventRequest posts a client-originated event to a running handler.
// Event carries the JSON encoded envelope.
type SendEventRequest struct {
	Event string `json:"event"`
	Step  string `json:"step,omitempty"`
}

type SendEventResponse struct {
	Status string `json:"status"`
}

type workflowsResponse struct {
	Workflows []string `json:"workflows"`
}

type graphResponse struct {
	Graph map[string]any `json:"graph"`
}

type handlersResponse struct {
	Handlers []Handler `json:"handlers"`
}
