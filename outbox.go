package edk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// outbox is the unbounded queue drained by the sender goroutine of a connection.
// Pushing never blocks, so it may be done while holding locks.
type outbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wakeCh chan struct{}
	doneCh chan struct{}
}

func newOutbox[T any]() *outbox[T] {
	return &outbox[T]{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// Push appends the item. It returns false if outbox is closed.
func (o *outbox[T]) Push(item T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	o.items = append(o.items, item)

	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// Close closes the outbox. Items pushed before are still delivered.
func (o *outbox[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.doneCh)
}

// Done is closed when outbox is closed.
func (o *outbox[T]) Done() <-chan struct{} {
	return o.doneCh
}

// Wait returns the queued items. False is returned once the outbox is closed and drained.
func (o *outbox[T]) Wait(ctx context.Context) ([]T, bool, error) {
	for {
		o.mu.Lock()
		items := o.items
		closed := o.closed
		o.items = nil
		o.mu.Unlock()

		if len(items) > 0 {
			return items, true, nil
		}
		if closed {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, errors.WithStack(ctx.Err())
		case <-o.wakeCh:
		case <-o.doneCh:
		}
	}
}
