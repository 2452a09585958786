package workflows

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/store"
	"github.com/compozy/workflowkit/engine/workflow"
	"github.com/compozy/workflowkit/pkg/logger"
)

// Resolver returns the shared store for a workflow name.
type Resolver func(name string) (*workflow.Store, error)

// State is the observable view of the workflow catalog.
type State struct {
	Names        []string `json:"names"`
	Loading      bool     `json:"loading"`
	LoadingError string   `json:"loading_error,omitempty"`
}

// Store mirrors the list of workflows known to the server.
type Store struct {
	api     client.API
	resolve Resolver
	state   *store.Observable[State]
	group   singleflight.Group

	mu        sync.RWMutex
	workflows map[string]*workflow.Store
}

// NewStore creates the catalog. A nil resolve creates private workflow stores.
func NewStore(api client.API, resolve Resolver) *Store {
	if resolve == nil {
		resolve = func(name string) (*workflow.Store, error) {
			return workflow.NewStore(api, nil, name, nil), nil
		}
	}
	return &Store{
		api:       api,
		resolve:   resolve,
		state:     store.NewObservable(State{}),
		workflows: make(map[string]*workflow.Store),
	}
}

func (s *Store) Snapshot() State {
	return s.state.Get()
}

func (s *Store) Subscribe(fn func(State)) func() {
	return s.state.Subscribe(fn)
}

// Names returns workflow names in server order.
func (s *Store) Names() []string {
	var names []string
	s.state.Read(func(st *State) { names = slices.Clone(st.Names) })
	return names
}

// Workflow returns the store for name when the catalog lists it.
func (s *Store) Workflow(name string) (*workflow.Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[name]
	return w, ok
}

// Workflows returns the listed workflow stores in server order.
func (s *Store) Workflows() []*workflow.Store {
	names := s.Names()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Store, 0, len(names))
	for _, name := range names {
		if w, ok := s.workflows[name]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Sync reconciles the catalog with the server. Names no longer listed are
// removed and stores for names still listed are kept. Failures are recorded
// in LoadingError and leave the catalog untouched.
func (s *Store) Sync(ctx context.Context) error {
	_, _, _ = s.group.Do("sync", func() (any, error) {
		return nil, s.sync(ctx)
	})
	return nil
}

func (s *Store) sync(ctx context.Context) error {
	log := logger.FromContext(ctx)
	s.state.Update(func(st *State) {
		st.Loading = true
		st.LoadingError = ""
	})
	names, err := s.api.ListWorkflows(ctx)
	if err != nil {
		return s.fail(log, err)
	}
	next := make(map[string]*workflow.Store, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := next[name]; dup {
			continue
		}
		w, ok := s.Workflow(name)
		if !ok {
			if w, err = s.resolve(name); err != nil {
				return s.fail(log, fmt.Errorf("failed to resolve workflow %s: %w", name, err))
			}
		}
		next[name] = w
		order = append(order, name)
	}
	s.mu.Lock()
	s.workflows = next
	s.mu.Unlock()
	s.state.Update(func(st *State) {
		st.Names = order
		st.Loading = false
	})
	log.Debug("Synced workflows", "count", len(order))
	return nil
}

func (s *Store) fail(log logger.Logger, err error) error {
	s.state.Update(func(st *State) {
		st.Loading = false
		st.LoadingError = err.Error()
	})
	log.Warn("Failed to sync workflows", "error", err)
	return err
}

// SyncGraphs fetches the graph of every listed workflow with at most limit
// requests in flight. Per-workflow failures land in each workflow's state.
func (s *Store) SyncGraphs(ctx context.Context, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, w := range s.Workflows() {
		g.Go(func() error {
			return w.Sync(ctx)
		})
	}
	return g.Wait()
}
