package edk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Awakable is notified about the state of handle signals it is waiting for.
type Awakable interface {
	// Awake is called with ResultOK when signals are satisfied, ResultFailedPrecondition when they
	// can never be satisfied and ResultCancelled when the handle is closed. Returning false
	// unregisters the awakable. It is called with internal locks held, so it must not call back
	// into the handle.
	Awake(result Result, context uint64) bool
}

type awakableEntry struct {
	awakable Awakable
	signals  HandleSignals
	context  uint64
}

// awakableList is guarded by the lock of its owner.
type awakableList struct {
	entries []awakableEntry
}

func (l *awakableList) Add(awakable Awakable, signals HandleSignals, context uint64) {
	l.entries = append(l.entries, awakableEntry{
		awakable: awakable,
		signals:  signals,
		context:  context,
	})
}

func (l *awakableList) Remove(awakable Awakable) {
	entries := l.entries[:0]
	for _, e := range l.entries {
		if e.awakable != awakable {
			entries = append(entries, e)
		}
	}
	clear(l.entries[len(entries):])
	l.entries = entries
}

func (l *awakableList) AwakeForStateChange(state HandleSignalsState) {
	entries := l.entries[:0]
	for _, e := range l.entries {
		keep := true
		switch {
		case state.Satisfies(e.signals):
			keep = e.awakable.Awake(ResultOK, e.context)
		case !state.CanSatisfy(e.signals):
			keep = e.awakable.Awake(ResultFailedPrecondition, e.context)
		}
		if keep {
			entries = append(entries, e)
		}
	}
	clear(l.entries[len(entries):])
	l.entries = entries
}

func (l *awakableList) CancelAll() {
	for _, e := range l.entries {
		e.awakable.Awake(ResultCancelled, e.context)
	}
	l.entries = nil
}

// Waiter is an awakable blocking the goroutine until it is awoken.
type Waiter struct {
	mu      sync.Mutex
	awoken  bool
	result  Result
	context uint64
	readyCh chan struct{}
}

// NewWaiter creates new waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		readyCh: make(chan struct{}),
	}
}

// Awake implements Awakable. The first call wins.
func (w *Waiter) Awake(result Result, context uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.awoken {
		w.awoken = true
		w.result = result
		w.context = context
		close(w.readyCh)
	}
	return false
}

// Wait waits until the waiter is awoken and returns the result and the context it was awoken with.
func (w *Waiter) Wait(ctx context.Context) (Result, uint64, error) {
	select {
	case <-ctx.Done():
		return ResultDeadlineExceeded, 0, errors.WithStack(ctx.Err())
	case <-w.readyCh:
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.result, w.context, nil
}

// WaitForSignals blocks until any of the signals is satisfied on the dispatcher or becomes unsatisfiable.
func WaitForSignals(ctx context.Context, d *MessagePipeDispatcher, signals HandleSignals) (Result, error) {
	w := NewWaiter()
	result, _ := d.AddAwakable(w, signals, 0)
	switch result {
	case ResultOK:
	case ResultAlreadyExists:
		return ResultOK, nil
	default:
		return result, nil
	}
	defer d.RemoveAwakable(w)

	result, _, err := w.Wait(ctx)
	return result, err
}
