package task

import (
	"context"
	"errors"
	"sync"
)

// ErrRunning is returned by Result while the task has not finished.
var ErrRunning = errors.New("task is still running")

// Handle observes and controls one supervised task.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	once   sync.Once
	result any
	err    error
}

// ID is unique per task.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel cancels the task's context.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Finished reports whether the task has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the task outcome, or ErrRunning before it finished.
func (h *Handle) Result() (any, error) {
	if !h.Finished() {
		return nil, ErrRunning
	}

	return h.result, h.err
}

func (h *Handle) finish(value any, err error) {
	h.once.Do(func() {
		h.result = value
		h.err = err
		close(h.done)
	})
}
