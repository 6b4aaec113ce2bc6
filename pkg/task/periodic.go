package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("periodic is already started")
	ErrNotStarted     = errors.New("periodic is not started")
	ErrBadInterval    = errors.New("periodic interval must be positive")
)

// Periodic calls a function every interval. Its loop and every call run as
// tasks of the owning supervisor, so cancelling the supervisor stops it.
type Periodic struct {
	sup      *Supervisor
	interval time.Duration
	fn       Func

	mu   sync.Mutex
	loop *Handle
}

// NewPeriodic binds fn to sup. Nothing runs until Start.
func NewPeriodic(sup *Supervisor, interval time.Duration, fn Func) *Periodic {
	return &Periodic{sup: sup, interval: interval, fn: fn}
}

// Interval returns the configured period.
func (p *Periodic) Interval() time.Duration {
	return p.interval
}

// Start begins the schedule. With runImmediately false the first call
// happens one interval from now.
func (p *Periodic) Start(runImmediately bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running() {
		return ErrAlreadyStarted
	}
	if p.interval <= 0 {
		return fmt.Errorf("%w: %s", ErrBadInterval, p.interval)
	}

	loop, err := p.sup.Spawn(func(ctx context.Context) (any, error) {
		return nil, p.run(ctx, runImmediately)
	})
	if err != nil {
		return err
	}
	p.loop = loop

	return nil
}

// Stop cancels the schedule. Calls already in flight keep running.
func (p *Periodic) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running() {
		return ErrNotStarted
	}

	p.loop.Cancel()
	p.loop = nil

	return nil
}

// Started reports whether the schedule is running.
func (p *Periodic) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running()
}

func (p *Periodic) running() bool {
	if p.loop == nil {
		return false
	}

	return !p.loop.Finished()
}

func (p *Periodic) run(ctx context.Context, runImmediately bool) error {
	if runImmediately {
		if _, err := p.sup.Spawn(p.fn); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.sup.Spawn(p.fn); err != nil {
				return nil
			}
		}
	}
}
