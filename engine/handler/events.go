package handler

import (
	"context"
	"fmt"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/streaming"
	"github.com/compozy/workflowkit/pkg/logger"
)

// SubscribeToEvents attaches sub to the handler's event stream, opening it
// when no other subscriber holds it. The first subscriber decides whether
// internal events are included.
//
// The final disposition never comes from the stream itself: after the stop
// event the stream is closed, the handler is synced and OnSuccess, OnError or
// OnCancel fire according to the synced status.
func (s *Store) SubscribeToEvents(ctx context.Context, sub Subscriber, includeInternal bool) (*Operation, error) {
	id := s.HandlerID()
	if id == "" {
		return nil, core.ErrNotInitialized
	}
	if s.streams == nil {
		return nil, fmt.Errorf("handler %s has no streaming manager", id)
	}
	cancel := func(ctx context.Context) error {
		return s.api.CancelHandler(ctx, id)
	}
	return s.streams.Subscribe(ctx, StreamKey(id), sub, s.streamEvents(id, includeInternal), cancel), nil
}

func (s *Store) streamEvents(id string, includeInternal bool) streaming.StartFunc[*core.WorkflowEvent] {
	return func(ctx context.Context, fanout Subscriber) ([]*core.WorkflowEvent, error) {
		log := logger.FromContext(ctx).With("handler_id", id)
		var events []*core.WorkflowEvent
		stopped := false
		err := s.api.StreamEvents(ctx, id, includeInternal, client.StreamHandler{
			OnOpen: func() {
				log.Debug("Handler event stream open")
				s.markRunning(id)
				fanout.OnStart()
			},
			OnMessage: func(data []byte) error {
				evt, err := core.ParseEnvelope(data)
				if err != nil {
					log.Warn("Skipping malformed handler event", "error", err)
					return nil
				}
				s.touch(id)
				events = append(events, evt)
				fanout.OnData(evt)
				if evt.IsStopEvent() {
					stopped = true
					return client.ErrStopStream
				}
				return nil
			},
			OnTransportError: func(err error) {
				log.Warn("Ignoring handler event stream transport error", "error", err)
			},
		})
		if ctx.Err() != nil {
			return events, ctx.Err()
		}
		if err != nil {
			return events, err
		}
		return events, s.settle(ctx, id, events, stopped, fanout)
	}
}

// settle syncs after the stream closed and reports the disposition.
func (s *Store) settle(
	ctx context.Context,
	id string,
	events []*core.WorkflowEvent,
	stopped bool,
	fanout Subscriber,
) error {
	log := logger.FromContext(ctx).With("handler_id", id)
	if err := s.sync(ctx); err != nil {
		if stopped {
			return fmt.Errorf("failed to sync handler %s after stop event: %w", id, err)
		}
		log.Warn("Handler event stream closed and sync failed", "error", err)
		return nil
	}
	st := s.Snapshot()
	switch st.Status {
	case core.StatusCompleted:
		fanout.OnSuccess(events)
	case core.StatusFailed:
		fanout.OnError(core.NewExecutionError(id, st.Error))
	case core.StatusCancelled:
		fanout.OnCancel()
	default:
		if stopped {
			return core.NewInvariantError(id, st.Status, "status is not terminal after stop event")
		}
		log.Debug("Handler event stream closed before the stop event", "status", st.Status)
	}
	return nil
}
