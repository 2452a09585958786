package handlers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/handler"
	"github.com/compozy/workflowkit/engine/store"
	"github.com/compozy/workflowkit/pkg/logger"
)

// Resolver returns the shared store for a handler id, creating a placeholder
// when none exists yet.
type Resolver func(handlerID string) (*handler.Store, error)

// State is the observable view of a handler collection.
type State struct {
	Handlers     map[string]handler.State `json:"handlers"`
	Query        Query                    `json:"query"`
	Loading      bool                     `json:"loading"`
	LoadingError string                   `json:"loading_error,omitempty"`
}

type meta struct {
	IDs          []string
	Loading      bool
	LoadingError string
}

// Store keeps the handlers matching a query in sync with the server.
type Store struct {
	api     client.API
	query   Query
	resolve Resolver
	meta    *store.Observable[meta]
	group   singleflight.Group

	mu       sync.RWMutex
	handlers map[string]*handler.Store
}

// NewStore creates a collection. A nil resolve gives every handler a
// private store sharing one streaming manager.
func NewStore(api client.API, query Query, resolve Resolver) *Store {
	if resolve == nil {
		streams := handler.NewStreams()
		resolve = func(id string) (*handler.Store, error) {
			return handler.NewStore(api, streams, handler.NewState(id)), nil
		}
	}
	return &Store{
		api:      api,
		query:    query.Normalize(),
		resolve:  resolve,
		meta:     store.NewObservable(meta{}),
		handlers: make(map[string]*handler.Store),
	}
}

func (s *Store) Query() Query {
	return s.query
}

// Snapshot returns the collection with a snapshot of every handler.
func (s *Store) Snapshot() State {
	m := s.meta.Get()
	out := State{
		Handlers:     make(map[string]handler.State, len(m.IDs)),
		Query:        s.query,
		Loading:      m.Loading,
		LoadingError: m.LoadingError,
	}
	for _, h := range s.Handlers() {
		st := h.Snapshot()
		out.Handlers[st.HandlerID] = st
	}
	return out
}

// Subscribe is notified when membership or loading state changes. Changes
// inside a handler are published by that handler's store.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.meta.Subscribe(func(meta) { fn(s.Snapshot()) })
}

// Handler returns the store for id when it belongs to the collection.
func (s *Store) Handler(id string) (*handler.Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[id]
	return h, ok
}

// IDs returns member ids in server order.
func (s *Store) IDs() []string {
	var ids []string
	s.meta.Read(func(m *meta) { ids = slices.Clone(m.IDs) })
	return ids
}

// Handlers returns member stores in server order.
func (s *Store) Handlers() []*handler.Store {
	ids := s.IDs()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*handler.Store, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.handlers[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// SetHandler registers h in the collection, replacing any store held for
// the same id. Freshly created handlers become visible this way.
func (s *Store) SetHandler(h *handler.Store) error {
	id := h.HandlerID()
	if id == "" {
		return fmt.Errorf("cannot register a handler without id")
	}
	s.mu.Lock()
	_, existed := s.handlers[id]
	s.handlers[id] = h
	s.mu.Unlock()
	if !existed {
		s.meta.Update(func(m *meta) { m.IDs = append(m.IDs, id) })
	}
	return nil
}

// Sync reconciles the collection with the server list. Members missing from
// the list are removed, existing members are merged in place and new ones
// added. A failed request leaves the collection untouched and is recorded in
// LoadingError. Concurrent calls share one request.
func (s *Store) Sync(ctx context.Context) error {
	_, _, _ = s.group.Do("sync", func() (any, error) {
		return nil, s.sync(ctx)
	})
	return nil
}

func (s *Store) sync(ctx context.Context) error {
	log := logger.FromContext(ctx).With("query", s.query.Key())
	s.meta.Update(func(m *meta) {
		m.Loading = true
		m.LoadingError = ""
	})
	records, err := s.api.ListHandlers(ctx, s.query.filter())
	if err != nil {
		return s.fail(log, err)
	}
	next := make(map[string]*handler.Store, len(records))
	order := make([]string, 0, len(records))
	byID := make(map[string]client.Handler, len(records))
	for _, rec := range records {
		if rec.HandlerID == "" {
			continue
		}
		if _, dup := next[rec.HandlerID]; dup {
			continue
		}
		h, ok := s.Handler(rec.HandlerID)
		if !ok {
			if h, err = s.resolve(rec.HandlerID); err != nil {
				return s.fail(log, fmt.Errorf("failed to resolve handler %s: %w", rec.HandlerID, err))
			}
		}
		next[rec.HandlerID] = h
		byID[rec.HandlerID] = rec
		order = append(order, rec.HandlerID)
	}
	for _, id := range order {
		if err := next[id].Apply(byID[id]); err != nil {
			log.Warn("Skipping invalid handler record", "handler_id", id, "error", err)
		}
	}
	s.mu.Lock()
	removed := 0
	for id := range s.handlers {
		if _, keep := next[id]; !keep {
			removed++
		}
	}
	s.handlers = next
	s.mu.Unlock()
	s.meta.Update(func(m *meta) {
		m.IDs = order
		m.Loading = false
	})
	log.Debug("Synced handlers", "count", len(order), "removed", removed)
	return nil
}

func (s *Store) fail(log logger.Logger, err error) error {
	s.meta.Update(func(m *meta) {
		m.Loading = false
		m.LoadingError = err.Error()
	})
	log.Warn("Failed to sync handlers", "error", err)
	return err
}
