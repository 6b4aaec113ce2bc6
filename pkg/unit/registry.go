package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"jeev/pkg/config"
	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/task"
)

// ReservedNames cannot be used as unit names; they collide with host
// components and web routes.
var ReservedNames = []string{"jeev", "web", "storage", "adapter", "host", "healthz", "readyz"}

// Observer is told about registry lifecycle changes.
type Observer interface {
	UnitLoaded(name string)
	UnitUnloaded(name string)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithEnviron sets the environment consulted for unit options.
func WithEnviron(env config.Environ) RegistryOption {
	return func(r *Registry) {
		r.env = env
	}
}

// WithReserved adds names to the reserved set.
func WithReserved(names ...string) RegistryOption {
	return func(r *Registry) {
		for _, name := range names {
			r.reserved[strings.ToLower(name)] = struct{}{}
		}
	}
}

func WithObserver(observer Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = observer
	}
}

// Registry owns the loaded units. Dispatch order is load order.
type Registry struct {
	catalog  *Catalog
	host     Host
	log      *slog.Logger
	env      config.Environ
	reserved map[string]struct{}
	observer Observer
	tasks    *task.Supervisor

	// loadMu serializes Load, LoadAll, Unload and Reload.
	loadMu sync.Mutex

	mu    sync.RWMutex
	units []*Unit
	index map[string]*Unit
}

// NewRegistry returns an empty registry that instantiates units from catalog.
func NewRegistry(catalog *Catalog, host Host, opts ...RegistryOption) *Registry {
	if catalog == nil {
		catalog = NewCatalog()
	}

	r := &Registry{
		catalog:  catalog,
		host:     host,
		log:      slog.Default(),
		env:      config.OSEnviron(),
		reserved: make(map[string]struct{}, len(ReservedNames)),
		index:    make(map[string]*Unit),
	}
	for _, name := range ReservedNames {
		r.reserved[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "unit.registry")
	r.tasks = task.NewSupervisor(func(err error) {
		r.log.Error("registry task failed", "error", err)
	})

	return r
}

// Load instantiates, validates and registers one unit, then runs its
// on-loaded hooks. A failed load leaves the registry unchanged. Hooks run
// after loadMu is released, so they may load or unload other units.
func (r *Registry) Load(ctx context.Context, name string, raw map[string]any) (*Unit, error) {
	r.loadMu.Lock()
	u, err := r.prepare(name, raw)
	if err != nil {
		r.loadMu.Unlock()
		return nil, err
	}
	r.register(u)
	r.loadMu.Unlock()

	u.loaded(ctx)
	return u, nil
}

// LoadAll loads every unit of spec. If one fails, the units registered by
// this call are unloaded again and the failure is returned as a *LoadError.
// On-loaded hooks run only after the whole batch registered.
func (r *Registry) LoadAll(ctx context.Context, spec config.UnitsSpec) error {
	r.loadMu.Lock()
	batch := make([]*Unit, 0, len(spec))
	for _, entry := range spec {
		u, err := r.prepare(entry.Name, entry.Options)
		if err != nil {
			for _, loaded := range slices.Backward(batch) {
				_ = r.unload(loaded.name)
			}
			r.loadMu.Unlock()
			return &LoadError{Unit: entry.Name, Err: err}
		}
		r.register(u)
		batch = append(batch, u)
	}
	r.loadMu.Unlock()

	for _, u := range batch {
		u.loaded(ctx)
	}

	return nil
}

func (r *Registry) prepare(name string, raw map[string]any) (*Unit, error) {
	if _, reserved := r.reserved[strings.ToLower(name)]; reserved {
		return nil, fmt.Errorf("%q: %w", name, ErrReservedName)
	}
	if _, exists := r.Get(name); exists {
		return nil, fmt.Errorf("%q: %w", name, ErrDuplicateUnit)
	}

	def, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnitNotFound)
	}

	u := newUnit(def, option.NewSet(name, raw, option.WithEnviron(r.env)), r, r.host, r.log)
	if def.Setup != nil {
		if err := callSetup(def.Setup, u); err != nil {
			u.teardown()
			return nil, fmt.Errorf("set up unit %q: %w", name, err)
		}
	}

	if err := u.opts.Validate(); err != nil {
		u.teardown()
		return nil, fmt.Errorf("unit %q: %w", name, err)
	}

	return u, nil
}

func callSetup(setup func(*Unit) error, u *Unit) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return setup(u)
}

func (r *Registry) register(u *Unit) {
	u.setState(StateRegistered)

	r.mu.Lock()
	r.units = append(r.units, u)
	r.index[u.name] = u
	r.mu.Unlock()

	r.log.Info("unit loaded", "unit", u.name)
	if r.observer != nil {
		r.observer.UnitLoaded(u.name)
	}
}

func (r *Registry) remove(name string) (*Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.index[name]
	if !ok {
		return nil, false
	}

	delete(r.index, name)
	r.units = slices.DeleteFunc(r.units, func(candidate *Unit) bool { return candidate == u })
	return u, true
}

// Unload tears a unit down and removes it. Handlers of the unit may call it.
func (r *Registry) Unload(name string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	return r.unload(name)
}

func (r *Registry) unload(name string) error {
	u, ok := r.remove(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownUnit)
	}

	u.teardown()
	r.log.Info("unit unloaded", "unit", name)
	if r.observer != nil {
		r.observer.UnitUnloaded(name)
	}

	return nil
}

func (r *Registry) unloadAsync(name string) {
	_, err := r.tasks.Spawn(func(context.Context) (any, error) {
		if err := r.Unload(name); err != nil && !errors.Is(err, ErrUnknownUnit) {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		r.log.Warn("async unload refused", "unit", name, "error", err)
	}
}

// Reload replaces a unit with a fresh instance built from raw. A unit that is
// not loaded is simply loaded. If the new instance fails to load the unit
// stays unloaded.
func (r *Registry) Reload(ctx context.Context, name string, raw map[string]any) (*Unit, error) {
	r.loadMu.Lock()
	if err := r.unload(name); err != nil && !errors.Is(err, ErrUnknownUnit) {
		r.loadMu.Unlock()
		return nil, err
	}

	u, err := r.prepare(name, raw)
	if err != nil {
		r.loadMu.Unlock()
		return nil, err
	}
	r.register(u)
	r.loadMu.Unlock()

	u.loaded(ctx)
	return u, nil
}

// UnloadAll unloads every unit in reverse load order.
func (r *Registry) UnloadAll() {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	for _, u := range slices.Backward(r.Units()) {
		_ = r.unload(u.name)
	}
}

// Close unloads every unit and waits for pending asynchronous unloads.
func (r *Registry) Close(ctx context.Context) error {
	r.UnloadAll()
	r.tasks.CancelAll()

	return r.tasks.Wait(ctx)
}

// Get returns a loaded unit.
func (r *Registry) Get(name string) (*Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.index[name]
	return u, ok
}

// Units returns the loaded units in load order.
func (r *Registry) Units() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.units)
}

// Names returns loaded unit names in load order.
func (r *Registry) Names() []string {
	units := r.Units()
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.name)
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.units)
}

// Dispatch hands msg to every loaded unit in load order.
func (r *Registry) Dispatch(ctx context.Context, msg *message.Message) {
	for _, u := range r.Units() {
		if ctx.Err() != nil {
			return
		}
		u.Dispatch(ctx, msg)
	}
}

// SyncAll flushes every opened data handle and returns the joined errors.
func (r *Registry) SyncAll() error {
	var errs []error
	for _, u := range r.Units() {
		if err := u.syncData(); err != nil {
			errs = append(errs, fmt.Errorf("sync unit %q: %w", u.name, err))
		}
	}

	return errors.Join(errs...)
}
