package streaming

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type stream[T any] struct {
	key      string
	id       string
	ctx      context.Context
	abort    context.CancelFunc
	cancelFn CancelFunc
	queue    *dispatcher[T]
	done     chan struct{}

	mu       sync.Mutex
	members  []*member[T]
	started  bool
	canceled bool
	detached bool
	finished bool
	events   []T
	err      error
}

func newStream[T any](ctx context.Context, key string, cancelFn CancelFunc) *stream[T] {
	streamCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	return &stream[T]{
		key:      key,
		id:       uuid.NewString(),
		ctx:      streamCtx,
		abort:    abort,
		cancelFn: cancelFn,
		queue:    newDispatcher[T](),
		done:     make(chan struct{}),
	}
}

// join attaches sub. A subscriber joining an already started stream gets
// OnStart right away, ahead of any later event.
func (s *stream[T]) join(sub Subscriber[T]) *member[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &member[T]{id: uuid.NewString(), sub: sub, active: true}
	s.members = append(s.members, m)
	if s.started && !s.finished {
		s.queue.push(delivery[T]{
			recipients: []*member[T]{m},
			call:       callStart[T],
		})
	}
	return m
}

// leave detaches m and returns how many members remain.
func (s *stream[T]) leave(m *member[T]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.active {
		m.active = false
		for i, other := range s.members {
			if other == m {
				s.members = append(s.members[:i], s.members[i+1:]...)
				break
			}
		}
	}
	return len(s.members)
}

func (s *stream[T]) broadcast(final bool, call func(Subscriber[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLocked(final, call)
}

func (s *stream[T]) pushLocked(final bool, call func(Subscriber[T])) {
	recipients := make([]*member[T], len(s.members))
	copy(recipients, s.members)
	s.queue.push(delivery[T]{recipients: recipients, final: final, call: call})
}

func (s *stream[T]) isActive(m *member[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.active
}

func (s *stream[T]) isCanceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// fanout is the subscriber handed to the StartFunc.
func (s *stream[T]) fanout(onEvent func()) Subscriber[T] {
	return Subscriber[T]{
		OnStart: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.started {
				return
			}
			s.started = true
			s.pushLocked(false, callStart[T])
		},
		OnData: func(item T) {
			if onEvent != nil {
				onEvent()
			}
			s.broadcast(false, func(sub Subscriber[T]) {
				if sub.OnData != nil {
					sub.OnData(item)
				}
			})
		},
		OnError: func(err error) {
			s.broadcast(false, func(sub Subscriber[T]) {
				if sub.OnError != nil {
					sub.OnError(err)
				}
			})
		},
		OnSuccess: func(items []T) {
			s.broadcast(false, func(sub Subscriber[T]) {
				if sub.OnSuccess != nil {
					sub.OnSuccess(items)
				}
			})
		},
		OnCancel: func() {
			s.broadcast(false, callCancel[T])
		},
		// OnComplete is emitted by the manager once the StartFunc returns.
		OnComplete: func() {},
	}
}

func callStart[T any](sub Subscriber[T]) {
	if sub.OnStart != nil {
		sub.OnStart()
	}
}

func callCancel[T any](sub Subscriber[T]) {
	if sub.OnCancel != nil {
		sub.OnCancel()
	}
}

func callComplete[T any](sub Subscriber[T]) {
	if sub.OnComplete != nil {
		sub.OnComplete()
	}
}
