package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/handler"
	"github.com/compozy/workflowkit/engine/handlers"
	"github.com/compozy/workflowkit/engine/store"
	"github.com/compozy/workflowkit/pkg/logger"
)

// State is the observable view of one named workflow.
type State struct {
	Name         string         `json:"name"`
	Graph        map[string]any `json:"graph,omitempty"`
	Loading      bool           `json:"loading"`
	LoadingError string         `json:"loading_error,omitempty"`
}

// Store tracks a workflow definition and starts executions of it.
type Store struct {
	api      client.API
	streams  *handler.Streams
	handlers *handlers.Store
	state    *store.Observable[State]
	group    singleflight.Group
}

// NewStore creates a workflow store. view is the handler collection scoped to
// this workflow; when nil a private one is created.
func NewStore(api client.API, streams *handler.Streams, name string, view *handlers.Store) *Store {
	if streams == nil {
		streams = handler.NewStreams()
	}
	if view == nil {
		view = handlers.NewStore(api, handlers.Query{WorkflowNames: []string{name}}, nil)
	}
	return &Store{
		api:      api,
		streams:  streams,
		handlers: view,
		state:    store.NewObservable(State{Name: name}),
	}
}

func (s *Store) Name() string {
	var name string
	s.state.Read(func(st *State) { name = st.Name })
	return name
}

func (s *Store) Snapshot() State {
	return s.state.Get()
}

func (s *Store) Subscribe(fn func(State)) func() {
	return s.state.Subscribe(fn)
}

// Handlers returns the collection of executions of this workflow.
func (s *Store) Handlers() *handlers.Store {
	return s.handlers
}

// Sync fetches the workflow graph. Failures are recorded in LoadingError and
// the previous graph is kept.
func (s *Store) Sync(ctx context.Context) error {
	name := s.Name()
	_, _, _ = s.group.Do(name, func() (any, error) {
		return nil, s.sync(ctx, name)
	})
	return nil
}

func (s *Store) sync(ctx context.Context, name string) error {
	s.state.Update(func(st *State) {
		st.Loading = true
		st.LoadingError = ""
	})
	graph, err := s.api.GetWorkflowGraph(ctx, name)
	s.state.Update(func(st *State) {
		st.Loading = false
		if err != nil {
			st.LoadingError = err.Error()
			return
		}
		st.Graph = graph
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to sync workflow graph", "workflow", name, "error", err)
	}
	return err
}

// CreateHandler starts an execution and returns as soon as the server
// accepted it. handlerID may be empty to let the server assign one. The
// returned store is not registered in any collection.
func (s *Store) CreateHandler(ctx context.Context, input map[string]any, handlerID string) (*handler.Store, error) {
	name := s.Name()
	resp, err := s.api.RunWorkflowNoWait(ctx, name, client.RunRequest{StartEvent: input, HandlerID: handlerID})
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow %s: %w", name, err)
	}
	if resp == nil || resp.HandlerID == "" {
		return nil, errors.New("handler creation failed")
	}
	h, err := handler.NewStoreFromHandler(s.api, s.streams, *resp)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Workflow started", "workflow", name, "handler_id", resp.HandlerID)
	return h, nil
}

// RunToCompletion blocks until the server finishes the execution and returns
// a store seeded with the final handler. A failed execution is returned as
// data in the handler state, not as an error. The returned store is not
// registered in any collection.
func (s *Store) RunToCompletion(ctx context.Context, input map[string]any) (*handler.Store, error) {
	name := s.Name()
	resp, err := s.api.RunWorkflow(ctx, name, client.RunRequest{StartEvent: input})
	if err != nil {
		return nil, fmt.Errorf("failed to run workflow %s: %w", name, err)
	}
	if resp == nil || resp.HandlerID == "" {
		return nil, fmt.Errorf("workflow %s run returned an empty response", name)
	}
	h, err := handler.NewStoreFromHandler(s.api, s.streams, *resp)
	if err != nil {
		return nil, err
	}
	if st := h.Snapshot(); !st.IsTerminal() {
		logger.FromContext(ctx).Warn("Workflow run returned before completion",
			"workflow", name, "handler_id", resp.HandlerID, "status", st.Status)
	}
	return h, nil
}
