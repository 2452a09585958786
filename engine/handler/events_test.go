package handler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/client/clienttest"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/streaming"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type callbacks struct {
	mu        sync.Mutex
	started   bool
	data      []string
	errs      []error
	successes int
	cancels   int
	completes int
	running   bool
}

func (c *callbacks) subscriber(s *Store) Subscriber {
	return Subscriber{
		OnStart: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.started = true
			if s != nil {
				c.running = s.Snapshot().Status == core.StatusRunning
			}
		},
		OnData: func(evt *core.WorkflowEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.data = append(c.data, evt.Type)
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
		OnSuccess: func([]*core.WorkflowEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.successes++
		},
		OnCancel: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.cancels++
		},
		OnComplete: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.completes++
		},
	}
}

func (c *callbacks) get() callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return callbacks{
		started:   c.started,
		data:      append([]string(nil), c.data...),
		errs:      append([]error(nil), c.errs...),
		successes: c.successes,
		cancels:   c.cancels,
		completes: c.completes,
		running:   c.running,
	}
}

func newServerStore(t *testing.T, status string) (*clienttest.Server, *Store) {
	t.Helper()
	srv := clienttest.NewServer(t)
	srv.PutHandler(client.Handler{HandlerID: "h-1", WorkflowName: "wf-1", Status: status})
	return srv, NewStore(srv.NewClient(t), NewStreams(), NewState("h-1"))
}

func TestStore_SubscribeToEvents(t *testing.T) {
	t.Run("Should share one connection and settle as success after sync", func(t *testing.T) {
		srv, s := newServerStore(t, "running")
		ctx := testContext(t)
		a, b := &callbacks{}, &callbacks{}
		opA, err := s.SubscribeToEvents(ctx, a.subscriber(s), false)
		require.NoError(t, err)
		opB, err := s.SubscribeToEvents(ctx, b.subscriber(s), false)
		require.NoError(t, err)
		assert.Equal(t, opA.StreamID(), opB.StreamID())
		srv.Emit("h-1", core.NewEvent("Progress", map[string]any{"pct": 50}))
		srv.Complete("h-1", map[string]any{"result": 3})

		eventsA, err := opA.Wait(ctx)
		require.NoError(t, err)
		eventsB, err := opB.Wait(ctx)
		require.NoError(t, err)
		require.Len(t, eventsA, 2)
		assert.True(t, eventsA[1].IsStopEvent())
		assert.Len(t, eventsB, 2)
		assert.Equal(t, 1, srv.StreamConnections("h-1"))

		for _, cb := range []*callbacks{a, b} {
			got := cb.get()
			assert.True(t, got.started)
			assert.Equal(t, []string{"Progress", "StopEvent"}, got.data)
			assert.Equal(t, 1, got.successes)
			assert.Equal(t, 1, got.completes)
			assert.Empty(t, got.errs)
		}
		st := s.Snapshot()
		assert.Equal(t, core.StatusCompleted, st.Status)
		require.NotNil(t, st.Result)
		assert.Equal(t, float64(3), st.Result.Data["result"])
		assert.NotNil(t, st.UpdatedAt)
	})

	t.Run("Should report a failed execution through OnError", func(t *testing.T) {
		srv, s := newServerStore(t, "running")
		ctx := testContext(t)
		cb := &callbacks{}
		op, err := s.SubscribeToEvents(ctx, cb.subscriber(s), false)
		require.NoError(t, err)
		srv.Fail("h-1", "division by zero")
		_, err = op.Wait(ctx)
		require.NoError(t, err)
		got := cb.get()
		require.Len(t, got.errs, 1)
		var execErr *core.ExecutionError
		require.ErrorAs(t, got.errs[0], &execErr)
		assert.Equal(t, "division by zero", execErr.Message)
		assert.Equal(t, 0, got.successes)
		assert.Equal(t, core.StatusFailed, s.Snapshot().Status)
	})

	t.Run("Should fail loudly when the status is not terminal after the stop event", func(t *testing.T) {
		srv, s := newServerStore(t, "running")
		ctx := testContext(t)
		cb := &callbacks{}
		op, err := s.SubscribeToEvents(ctx, cb.subscriber(s), false)
		require.NoError(t, err)
		srv.Emit("h-1", core.NewStopEvent(nil))
		_, err = op.Wait(ctx)
		require.Error(t, err)
		assert.True(t, core.IsInvariantError(err))
		got := cb.get()
		require.Len(t, got.errs, 1)
		assert.True(t, core.IsInvariantError(got.errs[0]))
	})

	t.Run("Should complete without disposition when the stream ends early", func(t *testing.T) {
		srv, s := newServerStore(t, "running")
		ctx := testContext(t)
		cb := &callbacks{}
		op, err := s.SubscribeToEvents(ctx, cb.subscriber(s), false)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return cb.get().started }, waitFor, tick)
		assert.True(t, cb.get().running)
		assert.Equal(t, core.StatusRunning, s.Snapshot().Status)
		srv.Emit("h-1", core.NewEvent("Progress", nil))
		srv.EndStream("h-1")
		events, err := op.Wait(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 1)
		got := cb.get()
		assert.Equal(t, 0, got.successes)
		assert.Empty(t, got.errs)
		assert.Equal(t, 1, got.completes)
		assert.Equal(t, core.StatusRunning, s.Snapshot().Status)
	})

	t.Run("Should cancel remotely and stop every subscriber", func(t *testing.T) {
		srv, s := newServerStore(t, "running")
		ctx := testContext(t)
		a, b := &callbacks{}, &callbacks{}
		opA, err := s.SubscribeToEvents(ctx, a.subscriber(s), false)
		require.NoError(t, err)
		opB, err := s.SubscribeToEvents(ctx, b.subscriber(s), false)
		require.NoError(t, err)
		require.NoError(t, opA.Cancel(ctx))
		_, err = opB.Wait(ctx)
		assert.ErrorIs(t, err, core.ErrStreamCanceled)
		assert.Equal(t, 1, srv.CancelCount("h-1"))
		assert.Equal(t, 1, a.get().cancels)
		assert.Equal(t, 1, b.get().cancels)
		require.NoError(t, s.Sync(ctx))
		assert.Equal(t, core.StatusCancelled, s.Snapshot().Status)
	})

	t.Run("Should reject subscriptions without a handler id", func(t *testing.T) {
		s := NewStore(clienttest.NewMockAPI(), NewStreams(), NewState(""))
		_, err := s.SubscribeToEvents(testContext(t), Subscriber{}, false)
		assert.ErrorIs(t, err, core.ErrNotInitialized)
	})
}

func TestStore_SubscribeToEventsWithMock(t *testing.T) {
	t.Run("Should skip malformed frames and ignore transport noise", func(t *testing.T) {
		api := clienttest.NewMockAPI()
		stop, err := core.NewStopEvent(map[string]any{"ok": true}).ToEnvelope()
		require.NoError(t, err)
		api.On("StreamEvents", mock.Anything, "h-1", true, mock.Anything).Run(func(args mock.Arguments) {
			h := args.Get(3).(client.StreamHandler)
			h.OnOpen()
			assert.NoError(t, h.OnMessage([]byte(`not json`)))
			h.OnTransportError(errors.New("connection reset"))
			assert.ErrorIs(t, h.OnMessage(stop), client.ErrStopStream)
		}).Return(nil).Once()
		api.On("GetHandler", mock.Anything, "h-1").Return(&client.Handler{
			HandlerID: "h-1",
			Status:    "completed",
			Result:    core.NewStopEvent(map[string]any{"ok": true}),
		}, nil).Once()
		s := NewStore(api, NewStreams(), NewState("h-1"))
		cb := &callbacks{}
		op, err := s.SubscribeToEvents(testContext(t), cb.subscriber(nil), true)
		require.NoError(t, err)
		events, err := op.Wait(testContext(t))
		require.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, 1, cb.get().successes)
		api.AssertExpectations(t)
	})

	t.Run("Should report a failed sync after the stop event as an error", func(t *testing.T) {
		api := clienttest.NewMockAPI()
		stop, err := core.NewStopEvent(nil).ToEnvelope()
		require.NoError(t, err)
		api.On("StreamEvents", mock.Anything, "h-1", false, mock.Anything).Run(func(args mock.Arguments) {
			h := args.Get(3).(client.StreamHandler)
			h.OnOpen()
			_ = h.OnMessage(stop)
		}).Return(nil).Once()
		api.On("GetHandler", mock.Anything, "h-1").Return(nil, errors.New("network down")).Once()
		s := NewStore(api, NewStreams(), NewState("h-1"))
		cb := &callbacks{}
		op, err := s.SubscribeToEvents(testContext(t), cb.subscriber(nil), false)
		require.NoError(t, err)
		_, err = op.Wait(testContext(t))
		require.ErrorContains(t, err, "after stop event")
		assert.False(t, core.IsInvariantError(err))
		assert.Len(t, cb.get().errs, 1)
		st := s.Snapshot()
		assert.Equal(t, "network down", st.LoadingError)
		assert.Equal(t, core.StatusRunning, st.Status)
	})

	t.Run("Should surface connection failures to subscribers", func(t *testing.T) {
		api := clienttest.NewMockAPI()
		api.On("StreamEvents", mock.Anything, "h-1", false, mock.Anything).
			Return(errors.New("connection refused")).Once()
		s := NewStore(api, NewStreams(), NewState("h-1"))
		op, err := s.SubscribeToEvents(testContext(t), Subscriber{}, false)
		require.NoError(t, err)
		_, err = op.Wait(testContext(t))
		require.ErrorContains(t, err, "connection refused")
		assert.False(t, errors.Is(err, streaming.ErrStreamDetached))
	})
}
