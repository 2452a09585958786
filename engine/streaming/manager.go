package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/pkg/logger"
)

// ErrStreamDetached is returned by Wait when the last subscriber disconnected
// before the stream finished.
var ErrStreamDetached = errors.New("event stream detached")

// Options configures a Manager.
type Options struct {
	// Kind labels metrics, e.g. "handler".
	Kind  string
	Meter metric.Meter
}

const meterName = "github.com/compozy/workflowkit/engine/streaming"

// defaultOptions holds scalar defaults only. Meter is an interface and is
// resolved separately so mergo never walks into a provider's internals.
func defaultOptions() Options {
	return Options{Kind: "stream"}
}

// Manager keeps at most one live connection per key and multiplexes it to
// any number of subscribers.
type Manager[T any] struct {
	mu      sync.Mutex
	streams map[string]*stream[T]
	kind    string
	metrics *Metrics
}

func NewManager[T any](opts Options) *Manager[T] {
	meter := opts.Meter
	opts.Meter = nil
	if err := mergo.Merge(&opts, defaultOptions()); err != nil {
		opts = defaultOptions()
	}
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	opts.Meter = meter
	metrics, err := NewMetrics(opts.Meter)
	if err != nil {
		logger.GetDefault().Warn("streaming metrics disabled", "error", err)
	}
	return &Manager[T]{
		streams: make(map[string]*stream[T]),
		kind:    opts.Kind,
		metrics: metrics,
	}
}

// Subscribe attaches sub to the stream identified by key. start is invoked
// only when no live stream exists for key; cancel is kept by the stream that
// start creates and used by Operation.Cancel.
func (m *Manager[T]) Subscribe(
	ctx context.Context,
	key string,
	sub Subscriber[T],
	start StartFunc[T],
	cancel CancelFunc,
) *Operation[T] {
	log := logger.FromContext(ctx)
	m.mu.Lock()
	if s, ok := m.streams[key]; ok {
		mem := s.join(sub)
		m.mu.Unlock()
		m.metrics.RecordJoin(ctx, m.kind)
		log.Debug("Joined shared stream", "key", key, "stream_id", s.id, "subscriber_id", mem.id)
		return &Operation[T]{manager: m, stream: s, member: mem}
	}
	s := newStream[T](ctx, key, cancel)
	mem := s.join(sub)
	m.streams[key] = s
	m.mu.Unlock()
	log.Debug("Opening shared stream", "key", key, "stream_id", s.id, "subscriber_id", mem.id)
	go s.queue.run(s)
	go m.run(s, start)
	return &Operation[T]{manager: m, stream: s, member: mem}
}

// Active reports whether a live stream exists for key.
func (m *Manager[T]) Active(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[key]
	return ok
}

// Len returns the number of live streams.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Close aborts every live stream locally without remote cancellation.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	streams := make([]*stream[T], 0, len(m.streams))
	for key, s := range m.streams {
		streams = append(streams, s)
		delete(m.streams, key)
	}
	m.mu.Unlock()
	for _, s := range streams {
		s.mu.Lock()
		s.detached = true
		s.mu.Unlock()
		s.abort()
	}
}

func (m *Manager[T]) forget(s *stream[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams[s.key] == s {
		delete(m.streams, s.key)
	}
}

// detach marks s detached and forgets it when no subscriber is attached.
// Holding m.mu keeps Subscribe from joining s in between.
func (m *Manager[T]) detach(s *stream[T]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || len(s.members) > 0 {
		return false
	}
	s.detached = true
	if m.streams[s.key] == s {
		delete(m.streams, s.key)
	}
	return true
}

func (m *Manager[T]) run(s *stream[T], start StartFunc[T]) {
	log := logger.FromContext(s.ctx).With("key", s.key, "stream_id", s.id)
	metricsCtx := context.WithoutCancel(s.ctx)
	startedAt := time.Now()
	m.metrics.RecordConnect(metricsCtx, m.kind)
	events, err := invoke(s, start, func() { m.metrics.RecordEvent(metricsCtx, m.kind) })
	m.forget(s)

	s.mu.Lock()
	s.finished = true
	s.events = events
	switch {
	case s.canceled:
		s.err = core.ErrStreamCanceled
		s.pushLocked(true, callCancel[T])
	case s.detached:
		s.err = ErrStreamDetached
	case err != nil:
		s.err = err
		s.pushLocked(true, func(sub Subscriber[T]) {
			if sub.OnError != nil {
				sub.OnError(err)
			}
		})
	}
	s.pushLocked(true, callComplete[T])
	final := s.err
	s.mu.Unlock()

	switch {
	case errors.Is(final, core.ErrStreamCanceled):
		log.Debug("Shared stream canceled")
	case errors.Is(final, ErrStreamDetached):
		log.Debug("Shared stream detached")
	case final != nil:
		m.metrics.RecordError(metricsCtx, m.kind, errorReason(final))
		if core.IsInvariantError(final) {
			log.Error("Shared stream ended with invariant violation", "error", final)
		} else {
			log.Warn("Shared stream ended with error", "error", final)
		}
	default:
		log.Debug("Shared stream closed", "events", len(events))
	}
	m.metrics.RecordDisconnect(metricsCtx, m.kind)
	m.metrics.RecordDuration(metricsCtx, m.kind, time.Since(startedAt))
	s.queue.close()
	s.abort()
}

func invoke[T any](s *stream[T], start StartFunc[T], onEvent func()) (events []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream %s start function panicked: %v", s.key, r)
		}
	}()
	return start(s.ctx, s.fanout(onEvent))
}

func errorReason(err error) string {
	switch {
	case core.IsInvariantError(err):
		return "invariant"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
