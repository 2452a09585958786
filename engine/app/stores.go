package app

import (
	"errors"
	"strings"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/handler"
	"github.com/compozy/workflowkit/engine/handlers"
	"github.com/compozy/workflowkit/engine/store"
	"github.com/compozy/workflowkit/engine/workflow"
	"github.com/compozy/workflowkit/engine/workflows"
)

const (
	handlersKeyPrefix = "handlers:"
	workflowKeyPrefix = "workflow:"
	workflowsKey      = "workflows"
)

// Stores hands out shared store instances. Asking twice for the same key
// returns the same instance so every consumer shares one state and one
// event stream.
type Stores struct {
	api      client.API
	registry *store.Registry
	streams  *handler.Streams
}

// New creates a Stores. A nil registry gets a private one.
func New(api client.API, registry *store.Registry) *Stores {
	if registry == nil {
		registry = store.NewRegistry()
	}
	return &Stores{
		api:      api,
		registry: registry,
		streams:  handler.NewStreams(),
	}
}

func (s *Stores) API() client.API {
	return s.api
}

func (s *Stores) Streams() *handler.Streams {
	return s.streams
}

// Handler returns the shared store for id. An empty id yields a fresh,
// unregistered placeholder that can be bound later with SetHandlerID and
// published with Register.
func (s *Stores) Handler(id string) (*handler.Store, error) {
	if id == "" {
		return handler.NewStore(s.api, s.streams, handler.NewState("")), nil
	}
	return store.GetOrCreate(s.registry, handler.StreamKey(id), func() *handler.Store {
		return handler.NewStore(s.api, s.streams, handler.NewState(id))
	})
}

// Handlers returns the shared collection for query. Equivalent queries share
// one collection and every member is the shared store for its id.
func (s *Stores) Handlers(query handlers.Query) (*handlers.Store, error) {
	return store.GetOrCreate(s.registry, handlersKeyPrefix+query.Key(), func() *handlers.Store {
		return handlers.NewStore(s.api, query, s.Handler)
	})
}

// Workflow returns the shared store for name.
func (s *Stores) Workflow(name string) (*workflow.Store, error) {
	if name == "" {
		return nil, errors.New("workflow name is required")
	}
	view, err := s.Handlers(handlers.Query{WorkflowNames: []string{name}})
	if err != nil {
		return nil, err
	}
	return store.GetOrCreate(s.registry, workflowKeyPrefix+name, func() *workflow.Store {
		return workflow.NewStore(s.api, s.streams, name, view)
	})
}

// Workflows returns the shared workflow catalog.
func (s *Stores) Workflows() (*workflows.Store, error) {
	return store.GetOrCreate(s.registry, workflowsKey, func() *workflows.Store {
		return workflows.NewStore(s.api, s.Workflow)
	})
}

// Register publishes a handler created outside the registry, such as one
// returned by Workflow.CreateHandler, and adds it to every live collection
// whose query it matches. When a store is already registered for the id that
// store is kept and returned.
func (s *Stores) Register(h *handler.Store) (*handler.Store, error) {
	id := h.HandlerID()
	if id == "" {
		return nil, errors.New("cannot register a handler without id")
	}
	canonical, err := store.GetOrCreate(s.registry, handler.StreamKey(id), func() *handler.Store { return h })
	if err != nil {
		return nil, err
	}
	if canonical != h {
		if err := canonical.Merge(h.Snapshot()); err != nil {
			return nil, err
		}
	}
	st := canonical.Snapshot()
	for _, key := range s.registry.Keys() {
		if !strings.HasPrefix(key, handlersKeyPrefix) {
			continue
		}
		coll, ok := store.Lookup[*handlers.Store](s.registry, key)
		if !ok || !coll.Query().Matches(st) {
			continue
		}
		if existing, ok := coll.Handler(id); ok && existing == canonical {
			continue
		}
		if err := coll.SetHandler(canonical); err != nil {
			return nil, err
		}
	}
	return canonical, nil
}

// Reset drops every shared store and detaches all live streams.
func (s *Stores) Reset() {
	s.registry.Reset()
	s.streams.Close()
}
