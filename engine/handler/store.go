package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/store"
	"github.com/compozy/workflowkit/engine/streaming"
	"github.com/compozy/workflowkit/pkg/logger"
)

// Streams is the shared streaming manager used for handler event streams.
type Streams = streaming.Manager[*core.WorkflowEvent]

// Subscriber receives handler stream callbacks.
type Subscriber = streaming.Subscriber[*core.WorkflowEvent]

// Operation is a handle on a handler event stream subscription.
type Operation = streaming.Operation[*core.WorkflowEvent]

// NewStreams returns a streaming manager labeled for handler streams.
func NewStreams() *Streams {
	return streaming.NewManager[*core.WorkflowEvent](streaming.Options{Kind: "handler"})
}

// StreamKey is the deduplication key of a handler's event stream.
func StreamKey(handlerID string) string {
	return "handler:" + handlerID
}

// Store tracks one workflow execution.
type Store struct {
	api     client.API
	streams *Streams
	state   *store.Observable[State]
	group   singleflight.Group
}

func NewStore(api client.API, streams *Streams, initial State) *Store {
	if initial.Status == "" {
		initial.Status = core.StatusNotStarted
	}
	return &Store{
		api:     api,
		streams: streams,
		state:   store.NewObservable(initial),
	}
}

// NewStoreFromHandler seeds a store from a server record.
func NewStoreFromHandler(api client.API, streams *Streams, h client.Handler) (*Store, error) {
	st, err := StateFromHandler(h)
	if err != nil {
		return nil, err
	}
	return NewStore(api, streams, st), nil
}

// HandlerID returns the current handler id, empty for a placeholder.
func (s *Store) HandlerID() string {
	var id string
	s.state.Read(func(st *State) { id = st.HandlerID })
	return id
}

// Snapshot returns an immutable copy of the state.
func (s *Store) Snapshot() State {
	return s.state.Get()
}

// Subscribe registers fn for state changes.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.state.Subscribe(fn)
}

// SetHandlerID binds a placeholder store to an id. An already bound store
// cannot be rebound to a different id.
func (s *Store) SetHandlerID(id string) error {
	if id == "" {
		return core.ErrNotInitialized
	}
	var err error
	s.state.Update(func(st *State) {
		switch st.HandlerID {
		case "":
			st.HandlerID = id
		case id:
		default:
			err = fmt.Errorf("handler store already bound to %s", st.HandlerID)
		}
	})
	return err
}

// Apply merges a server record into the state.
func (s *Store) Apply(h client.Handler) error {
	next, err := StateFromHandler(h)
	if err != nil {
		return err
	}
	return s.Merge(next)
}

// Merge folds another view of the same handler into the state, following
// the same forward-only rules as Apply.
func (s *Store) Merge(next State) error {
	var mismatch error
	s.state.Update(func(st *State) {
		if st.HandlerID != "" && next.HandlerID != "" && st.HandlerID != next.HandlerID {
			mismatch = fmt.Errorf("handler record %s does not match store %s", next.HandlerID, st.HandlerID)
			return
		}
		st.merge(next)
	})
	return mismatch
}

// Sync pulls the authoritative state from the server. Transport failures
// are recorded in LoadingError; only a missing handler id is returned.
// Concurrent calls share one request.
func (s *Store) Sync(ctx context.Context) error {
	err := s.sync(ctx)
	if errors.Is(err, core.ErrNotInitialized) {
		return err
	}
	return nil
}

func (s *Store) sync(ctx context.Context) error {
	id := s.HandlerID()
	if id == "" {
		return core.ErrNotInitialized
	}
	_, err, _ := s.group.Do(id, func() (any, error) {
		return nil, s.fetch(ctx, id)
	})
	return err
}

func (s *Store) fetch(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).With("handler_id", id)
	s.state.Update(func(st *State) {
		st.Loading = true
		st.LoadingError = ""
	})
	record, err := s.api.GetHandler(ctx, id)
	var next State
	if err == nil && record == nil {
		err = fmt.Errorf("empty response for handler %s", id)
	}
	if err == nil {
		next, err = StateFromHandler(*record)
	}
	if err == nil && next.HandlerID != "" && next.HandlerID != id {
		err = fmt.Errorf("server returned handler %s for %s", next.HandlerID, id)
	}
	s.state.Update(func(st *State) {
		st.Loading = false
		if st.HandlerID != id {
			return
		}
		if err != nil {
			st.LoadingError = err.Error()
			return
		}
		st.merge(next)
	})
	if err != nil {
		log.Warn("Failed to sync handler", "error", err)
		return err
	}
	log.Debug("Synced handler", "status", next.Status)
	return nil
}

// SendEvent posts a client-originated event to the running execution.
func (s *Store) SendEvent(ctx context.Context, evt *core.WorkflowEvent, step string) (*client.SendEventResponse, error) {
	id := s.HandlerID()
	if id == "" {
		return nil, core.ErrNotInitialized
	}
	payload, err := evt.ToEnvelope()
	if err != nil {
		return nil, err
	}
	resp, err := s.api.SendEvent(ctx, id, client.SendEventRequest{Event: string(payload), Step: step})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s to handler %s: %w", evt.Type, id, err)
	}
	return resp, nil
}

// Cancel asks the server to cancel the execution and syncs the result.
func (s *Store) Cancel(ctx context.Context) error {
	id := s.HandlerID()
	if id == "" {
		return core.ErrNotInitialized
	}
	if err := s.api.CancelHandler(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel handler %s: %w", id, err)
	}
	return s.Sync(ctx)
}

func (s *Store) markRunning(id string) {
	now := time.Now()
	s.state.Update(func(st *State) {
		if st.HandlerID != id {
			return
		}
		if !st.Status.IsTerminal() && st.Status.CanTransitionTo(core.StatusRunning) {
			st.Status = core.StatusRunning
		}
		st.UpdatedAt = &now
	})
}

// touch records a local observation time. It is not the server's clock.
func (s *Store) touch(id string) {
	now := time.Now()
	s.state.Update(func(st *State) {
		if st.HandlerID == id {
			st.UpdatedAt = &now
		}
	})
}
