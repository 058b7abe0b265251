package edk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// TaskRunner executes posted tasks on a designated goroutine.
type TaskRunner interface {
	// PostTask schedules the task. It returns false if the runner no longer accepts tasks.
	PostTask(task func()) bool
}

// SerialTaskRunner runs posted tasks one by one, in the order of posting.
type SerialTaskRunner struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool
	wakeCh  chan struct{}
}

// NewSerialTaskRunner creates new serial task runner.
func NewSerialTaskRunner() *SerialTaskRunner {
	return &SerialTaskRunner{
		wakeCh: make(chan struct{}, 1),
	}
}

// PostTask posts the task.
func (r *SerialTaskRunner) PostTask(task func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	r.tasks = append(r.tasks, task)

	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// Run runs tasks until context is canceled. Tasks posted before cancellation are still executed.
func (r *SerialTaskRunner) Run(ctx context.Context) error {
	for {
		tasks, stopped := r.takeTasks(ctx.Err() != nil)
		for _, task := range tasks {
			task()
		}
		if stopped {
			return errors.WithStack(ctx.Err())
		}
		if len(tasks) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-r.wakeCh:
		}
	}
}

func (r *SerialTaskRunner) takeTasks(stop bool) ([]func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := r.tasks
	r.tasks = nil
	if stop && len(tasks) == 0 {
		r.stopped = true
	}
	return tasks, r.stopped
}
