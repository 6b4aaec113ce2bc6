package unit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/storage"
	"jeev/pkg/task"
)

// State is a unit's lifecycle stage.
type State int32

const (
	StateCreated State = iota
	StateRegistered
	StateActive
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Host is what a unit needs from the process hosting it.
type Host interface {
	SendMessage(ctx context.Context, channel string, text string) error
	SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error
	OpenData(unit string) (storage.Handle, error)
	ReportError(unit string, err error)
}

// HandlerFunc handles a message for listeners and commands.
type HandlerFunc func(ctx context.Context, msg *message.Message) error

// Captures are the submatches of a pattern. Patterns with named groups fill
// Named only; other patterns fill Positional.
type Captures struct {
	Positional []string
	Named      map[string]string
}

// MatchFunc handles a message matched by a pattern.
type MatchFunc func(ctx context.Context, msg *message.Message, captures Captures) error

// Hook runs when a unit finishes loading or starts unloading.
type Hook func(ctx context.Context) error

// HandlerOption adjusts a handler registration.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	priority int
}

// Priority orders a handler within its table. Lower runs first; the
// default is 0.
func Priority(priority int) HandlerOption {
	return func(c *handlerConfig) {
		c.priority = priority
	}
}

type matcher struct {
	pattern   *regexp.Regexp
	responder bool
	fn        MatchFunc
}

// Unit is one loaded plug-in. Its Setup function receives it to register
// handlers, options, hooks and background work.
type Unit struct {
	name        string
	author      string
	description string

	registry *Registry
	log      *slog.Logger
	tasks    *task.Supervisor
	seq      atomic.Uint64
	state    atomic.Int32

	mu        sync.RWMutex
	host      Host
	opts      *option.Set
	listeners table[HandlerFunc]
	commands  map[string]*table[HandlerFunc]
	matchers  table[matcher]
	onLoaded  []Hook
	onUnload  []Hook
	handler   http.Handler

	dataMu sync.Mutex
	data   storage.Handle
}

func newUnit(def Definition, opts *option.Set, registry *Registry, host Host, log *slog.Logger) *Unit {
	u := &Unit{
		name:        def.Name,
		author:      def.Author,
		description: def.Description,
		registry:    registry,
		host:        host,
		opts:        opts,
		log:         log.With("component", "unit."+def.Name, "unit", def.Name),
		commands:    make(map[string]*table[HandlerFunc]),
	}
	u.tasks = task.NewSupervisor(func(err error) {
		u.reportError(err)
	})

	return u
}

func (u *Unit) Name() string        { return u.name }
func (u *Unit) Author() string      { return u.author }
func (u *Unit) Description() string { return u.description }

// State returns the current lifecycle stage.
func (u *Unit) State() State {
	return State(u.state.Load())
}

func (u *Unit) setState(s State) {
	u.state.Store(int32(s))
}

// Logger returns the unit's logger.
func (u *Unit) Logger() *slog.Logger {
	return u.log
}

// Listen registers a handler called for every message.
func (u *Unit) Listen(fn HandlerFunc, opts ...HandlerOption) {
	cfg := handlerOptions(opts)

	u.mu.Lock()
	defer u.mu.Unlock()

	u.listeners.add(cfg.priority, u.seq.Add(1), fn)
}

// Command registers a handler for messages whose first token is name.
func (u *Unit) Command(name string, fn HandlerFunc, opts ...HandlerOption) {
	cfg := handlerOptions(opts)

	u.mu.Lock()
	defer u.mu.Unlock()

	t, ok := u.commands[name]
	if !ok {
		t = &table[HandlerFunc]{}
		u.commands[name] = t
	}
	t.add(cfg.priority, u.seq.Add(1), fn)
}

// Match registers a pattern matcher using pattern exactly as given.
func (u *Unit) Match(pattern string, fn MatchFunc, opts ...HandlerOption) error {
	return u.addMatcher(pattern, false, fn, opts)
}

// Hear registers a case-insensitive pattern matcher.
func (u *Unit) Hear(pattern string, fn MatchFunc, opts ...HandlerOption) error {
	return u.addMatcher("(?i)"+pattern, false, fn, opts)
}

// Respond registers a case-insensitive matcher that only fires for
// messages addressed to the bot.
func (u *Unit) Respond(pattern string, fn MatchFunc, opts ...HandlerOption) error {
	return u.addMatcher("(?i)"+pattern, true, fn, opts)
}

func (u *Unit) addMatcher(pattern string, responder bool, fn MatchFunc, opts []HandlerOption) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("unit %q: compile pattern: %w", u.name, err)
	}

	cfg := handlerOptions(opts)

	u.mu.Lock()
	defer u.mu.Unlock()

	u.matchers.add(cfg.priority, u.seq.Add(1), matcher{pattern: re, responder: responder, fn: fn})
	return nil
}

func handlerOptions(opts []HandlerOption) handlerConfig {
	var cfg handlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DeclareOption declares a unit option. See option.Set.Declare.
func (u *Unit) DeclareOption(name string, description string, opts ...option.DeclareOption) {
	if set := u.Opts(); set != nil {
		set.Declare(name, description, opts...)
	}
}

// RegisterValidator validates an option when the unit loads.
func (u *Unit) RegisterValidator(field string, fn option.ValidatorFunc) {
	if set := u.Opts(); set != nil {
		set.RegisterValidator(field, fn)
	}
}

// Opts returns the unit's option set, or nil once unloaded.
func (u *Unit) Opts() *option.Set {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.opts
}

// OnLoaded registers a hook that runs after the unit registered. Hooks run
// outside the registry's load lock and may load or unload other units.
func (u *Unit) OnLoaded(fn Hook) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.onLoaded = append(u.onLoaded, fn)
}

// OnUnload registers a hook that runs when the unit is unloaded.
func (u *Unit) OnUnload(fn Hook) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.onUnload = append(u.onUnload, fn)
}

// Spawn runs fn on the unit's supervisor. Unloading cancels it.
func (u *Unit) Spawn(fn task.Func) (*task.Handle, error) {
	return u.tasks.Spawn(fn)
}

func (u *Unit) SpawnAfter(delay time.Duration, fn task.Func) (*task.Handle, error) {
	return u.tasks.SpawnAfter(delay, fn)
}

func (u *Unit) SpawnWithTimeout(timeout time.Duration, fn task.Func, timeoutValue any) (*task.Handle, error) {
	return u.tasks.SpawnWithTimeout(timeout, fn, timeoutValue)
}

// Periodic builds a schedule on the unit's supervisor. It must still be
// started.
func (u *Unit) Periodic(interval time.Duration, fn task.Func) *task.Periodic {
	return task.NewPeriodic(u.tasks, interval, fn)
}

// Tasks returns the number of live supervised tasks.
func (u *Unit) Tasks() int {
	return u.tasks.Len()
}

// Data opens the unit's persistent data on first use.
func (u *Unit) Data() (storage.Handle, error) {
	u.dataMu.Lock()
	defer u.dataMu.Unlock()

	if u.data != nil {
		return u.data, nil
	}

	host := u.currentHost()
	if host == nil || u.State() == StateUnloaded {
		return nil, fmt.Errorf("unit %q: %w", u.name, ErrUnloaded)
	}

	handle, err := host.OpenData(u.name)
	if err != nil {
		return nil, fmt.Errorf("open data for unit %q: %w", u.name, err)
	}
	u.data = handle

	return handle, nil
}

// SetHTTPHandler exposes handler under /<unit>/ on the web server.
func (u *Unit) SetHTTPHandler(handler http.Handler) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.handler = handler
}

func (u *Unit) HTTPHandler() http.Handler {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.handler
}

func (u *Unit) SendMessage(ctx context.Context, channel string, text string) error {
	host := u.currentHost()
	if host == nil {
		return fmt.Errorf("unit %q: %w", u.name, ErrUnloaded)
	}

	return host.SendMessage(ctx, channel, text)
}

func (u *Unit) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	host := u.currentHost()
	if host == nil {
		return fmt.Errorf("unit %q: %w", u.name, ErrUnloaded)
	}

	return host.SendAttachment(ctx, channel, attachments...)
}

// Sibling returns another loaded unit.
func (u *Unit) Sibling(name string) (*Unit, bool) {
	if u.registry == nil {
		return nil, false
	}

	return u.registry.Get(name)
}

// UnloadSelf unloads the unit asynchronously so handlers may call it.
func (u *Unit) UnloadSelf() {
	if u.registry == nil {
		return
	}

	u.registry.unloadAsync(u.name)
}

func (u *Unit) currentHost() Host {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.host
}

func (u *Unit) reportError(err error) {
	if host := u.currentHost(); host != nil {
		host.ReportError(u.name, err)
		return
	}

	u.log.Error("unit error", "error", err)
}

func (u *Unit) runHooks(ctx context.Context, hooks []Hook, kind string) {
	for _, hook := range hooks {
		if err := callHook(ctx, hook); err != nil {
			u.reportError(fmt.Errorf("%s hook: %w", kind, err))
		}
	}
}

func callHook(ctx context.Context, hook Hook) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return hook(ctx)
}

func (u *Unit) loaded(ctx context.Context) {
	u.mu.RLock()
	hooks := append([]Hook(nil), u.onLoaded...)
	u.mu.RUnlock()

	u.runHooks(ctx, hooks, "on-loaded")
	u.state.CompareAndSwap(int32(StateRegistered), int32(StateActive))
}

// teardown runs unload hooks, drops handlers, closes data and cancels every
// supervised task without waiting for them. Unload hooks only run for units
// that became active.
func (u *Unit) teardown() {
	previous := State(u.state.Swap(int32(StateUnloaded)))
	if previous == StateUnloaded {
		return
	}

	if previous == StateActive {
		u.mu.RLock()
		hooks := append([]Hook(nil), u.onUnload...)
		u.mu.RUnlock()
		u.runHooks(context.Background(), hooks, "on-unload")
	}

	u.mu.Lock()
	u.listeners = table[HandlerFunc]{}
	u.commands = make(map[string]*table[HandlerFunc])
	u.matchers = table[matcher]{}
	u.onLoaded = nil
	u.onUnload = nil
	u.handler = nil
	u.mu.Unlock()

	u.dataMu.Lock()
	if u.data != nil {
		if err := u.data.Sync(); err != nil {
			u.reportError(fmt.Errorf("sync data: %w", err))
		}
		if err := u.data.Close(); err != nil {
			u.reportError(fmt.Errorf("close data: %w", err))
		}
		u.data = nil
	}
	u.dataMu.Unlock()

	u.tasks.CancelAll()

	u.mu.Lock()
	u.opts = nil
	u.host = nil
	u.mu.Unlock()
}

func (u *Unit) syncData() error {
	u.dataMu.Lock()
	defer u.dataMu.Unlock()

	if u.data == nil {
		return nil
	}

	return u.data.Sync()
}
