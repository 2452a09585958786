package streaming

import "context"

// Subscriber receives the lifecycle callbacks of a shared stream. Every
// field is optional.
type Subscriber[T any] struct {
	OnStart    func()
	OnData     func(T)
	OnError    func(error)
	OnSuccess  func([]T)
	OnCancel   func()
	OnComplete func()
}

// StartFunc establishes the underlying connection and blocks until it ends.
// It reports progress through fanout, which delivers to every attached
// subscriber, and returns the accumulated items. ctx is canceled when the
// stream is canceled or abandoned.
type StartFunc[T any] func(ctx context.Context, fanout Subscriber[T]) ([]T, error)

// CancelFunc performs the remote side of a cancellation.
type CancelFunc func(ctx context.Context) error

type member[T any] struct {
	id     string
	sub    Subscriber[T]
	active bool
}

type delivery[T any] struct {
	recipients []*member[T]
	final      bool
	call       func(Subscriber[T])
}
