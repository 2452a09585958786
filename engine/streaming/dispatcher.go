package streaming

import "sync"

// dispatcher delivers callbacks for one stream in enqueue order on its own
// goroutine, so callbacks may re-enter the manager.
type dispatcher[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []delivery[T]
	closed bool
}

func newDispatcher[T any]() *dispatcher[T] {
	d := &dispatcher[T]{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher[T]) push(item delivery[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.items = append(d.items, item)
	d.cond.Signal()
}

func (d *dispatcher[T]) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}

func (d *dispatcher[T]) run(s *stream[T]) {
	defer close(s.done)
	for {
		d.mu.Lock()
		for len(d.items) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.items) == 0 {
			d.mu.Unlock()
			return
		}
		item := d.items[0]
		d.items[0] = delivery[T]{}
		d.items = d.items[1:]
		d.mu.Unlock()
		if !item.final && s.isCanceled() {
			continue
		}
		for _, m := range item.recipients {
			if s.isActive(m) {
				item.call(m.sub)
			}
		}
	}
}
