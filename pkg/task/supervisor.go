package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by spawns on a supervisor that has been cancelled.
var ErrClosed = errors.New("task supervisor is closed")

// Func is a unit of supervised work. It must return once ctx is done.
type Func func(ctx context.Context) (any, error)

// ErrorHandler receives errors and recovered panics of supervised tasks.
// Cancellation is not reported.
type ErrorHandler func(err error)

// Supervisor tracks the live tasks of one owner so they can be cancelled
// together.
type Supervisor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	onError ErrorHandler

	mu     sync.Mutex
	tasks  map[string]*Handle
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor returns an open supervisor. onError may be nil.
func NewSupervisor(onError ErrorHandler) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		onError: onError,
		tasks:   make(map[string]*Handle),
	}
}

// Spawn starts fn on its own goroutine.
func (s *Supervisor) Spawn(fn Func) (*Handle, error) {
	return s.start(0, fn)
}

// SpawnAfter starts fn once delay has elapsed. Cancelling the handle before
// then means fn never runs.
func (s *Supervisor) SpawnAfter(delay time.Duration, fn Func) (*Handle, error) {
	return s.start(delay, fn)
}

// SpawnWithTimeout starts fn with a deadline. If fn has not finished when
// the deadline passes, its context is cancelled and the handle resolves with
// timeoutValue instead.
func (s *Supervisor) SpawnWithTimeout(timeout time.Duration, fn Func, timeoutValue any) (*Handle, error) {
	return s.start(0, func(ctx context.Context) (any, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			value any
			err   error
		}
		results := make(chan outcome, 1)
		go func() {
			value, err := runRecovered(timeoutCtx, fn)
			results <- outcome{value: value, err: err}
		}()

		select {
		case result := <-results:
			if result.err != nil && timedOut(ctx, timeoutCtx) {
				return timeoutValue, nil
			}
			return result.value, result.err
		case <-timeoutCtx.Done():
			if timedOut(ctx, timeoutCtx) {
				return timeoutValue, nil
			}
			return nil, ctx.Err()
		}
	})
}

func timedOut(parent context.Context, child context.Context) bool {
	return parent.Err() == nil && errors.Is(child.Err(), context.DeadlineExceeded)
}

func (s *Supervisor) start(delay time.Duration, fn Func) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	h := &Handle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[h.id] = h
	s.wg.Add(1)

	go s.run(ctx, h, delay, fn)

	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, delay time.Duration, fn Func) {
	defer s.wg.Done()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.forget(h)
			h.finish(nil, ctx.Err())
			return
		case <-timer.C:
		}
	}

	value, err := runRecovered(ctx, fn)
	s.forget(h)

	// Report before resolving so waiters observe the callback's effects.
	if err != nil && !isCancellation(ctx, err) && s.onError != nil {
		s.onError(fmt.Errorf("task %s: %w", h.id, err))
	}
	h.finish(value, err)
}

func (s *Supervisor) forget(h *Handle) {
	h.cancel()

	s.mu.Lock()
	delete(s.tasks, h.id)
	s.mu.Unlock()
}

func runRecovered(ctx context.Context, fn Func) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return fn(ctx)
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// CancelAll cancels every tracked task without waiting for them and closes
// the supervisor to new work.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
}

// Closed reports whether CancelAll has been called.
func (s *Supervisor) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Len returns the number of live tasks.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

// Wait blocks until every tracked task has returned or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
