package streaming

import (
	"context"
	"fmt"
)

// Operation is one subscriber's handle on a shared stream.
type Operation[T any] struct {
	manager *Manager[T]
	stream  *stream[T]
	member  *member[T]
}

func (o *Operation[T]) Key() string {
	return o.stream.key
}

// StreamID identifies the underlying connection. Operations sharing a
// connection report the same value.
func (o *Operation[T]) StreamID() string {
	return o.stream.id
}

// Done is closed once the stream finished and every callback ran.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.stream.done
}

// Wait blocks until the stream finishes and returns the accumulated items.
func (o *Operation[T]) Wait(ctx context.Context) ([]T, error) {
	select {
	case <-o.stream.done:
		o.stream.mu.Lock()
		defer o.stream.mu.Unlock()
		return o.stream.events, o.stream.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe detaches this subscriber's callbacks. The connection stays
// open for the other subscribers, or with none at all.
func (o *Operation[T]) Unsubscribe() {
	o.stream.leave(o.member)
}

// Disconnect detaches this subscriber and drops the connection locally when
// nobody else is attached. The remote execution is not canceled.
func (o *Operation[T]) Disconnect() {
	if remaining := o.stream.leave(o.member); remaining > 0 {
		return
	}
	if o.manager.detach(o.stream) {
		o.stream.abort()
	}
}

// Cancel cancels the remote execution and tears the stream down for every
// subscriber. The stream is torn down even when the remote call fails.
func (o *Operation[T]) Cancel(ctx context.Context) error {
	s := o.stream
	s.mu.Lock()
	if s.finished || s.canceled {
		s.mu.Unlock()
		return nil
	}
	s.canceled = true
	s.mu.Unlock()
	o.manager.forget(s)
	var cancelErr error
	if s.cancelFn != nil {
		if err := s.cancelFn(ctx); err != nil {
			cancelErr = fmt.Errorf("failed to cancel %s: %w", s.key, err)
		}
	}
	s.abort()
	return cancelErr
}
