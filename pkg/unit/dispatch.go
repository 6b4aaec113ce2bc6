package unit

import (
	"context"
	"errors"
	"fmt"

	"jeev/pkg/message"
)

// Dispatch runs the unit's listeners, then the handlers of the message's
// command, then its pattern matchers. A handler returning Stop ends the
// unit's processing of msg. Handler errors and panics are reported and do
// not interrupt the chain.
//
// Handlers run on a snapshot of the tables with no lock held, so a handler
// may register handlers or unload its own unit.
func (u *Unit) Dispatch(ctx context.Context, msg *message.Message) {
	if u.State() != StateActive {
		return
	}

	u.mu.RLock()
	listeners := u.listeners.snapshot()
	commands := u.commands[msg.Command()].snapshot()
	matchers := u.matchers.snapshot()
	u.mu.RUnlock()

	for _, fn := range listeners {
		if u.stopped(u.invoke(ctx, "listener", func() error { return fn(ctx, msg) })) {
			return
		}
	}

	for _, fn := range commands {
		if u.stopped(u.invoke(ctx, "command "+msg.Command(), func() error { return fn(ctx, msg) })) {
			return
		}
	}

	for _, m := range matchers {
		if m.responder && !msg.Targeting {
			continue
		}

		captures, ok := match(m, msg.Text)
		if !ok {
			continue
		}

		if u.stopped(u.invoke(ctx, "pattern "+m.pattern.String(), func() error { return m.fn(ctx, msg, captures) })) {
			return
		}
	}
}

// stopped reports whether processing must end: on Stop, or once the unit
// left the active state.
func (u *Unit) stopped(stop bool) bool {
	return stop || u.State() != StateActive
}

func (u *Unit) invoke(ctx context.Context, kind string, call func() error) (stop bool) {
	if u.State() != StateActive || ctx.Err() != nil {
		return true
	}

	err := safeCall(call)
	if err == nil {
		return false
	}
	if errors.Is(err, Stop) {
		return true
	}

	u.reportError(fmt.Errorf("%s: %w", kind, err))
	return false
}

func safeCall(call func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return call()
}

func match(m matcher, text string) (Captures, bool) {
	groups := m.pattern.FindStringSubmatch(text)
	if groups == nil {
		return Captures{}, false
	}

	names := m.pattern.SubexpNames()
	named := map[string]string{}
	for i, name := range names {
		if i > 0 && name != "" {
			named[name] = groups[i]
		}
	}

	if len(named) > 0 {
		return Captures{Named: named}, true
	}

	return Captures{Positional: groups[1:]}, true
}
