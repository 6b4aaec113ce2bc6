package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"jeev/pkg/bus"
	"jeev/pkg/config"
	"jeev/pkg/message"
	"jeev/pkg/storage"
	"jeev/pkg/task"
	"jeev/pkg/transport"
	"jeev/pkg/unit"
	"jeev/pkg/web"

	"golang.org/x/sync/errgroup"
)

const stopTimeout = 10 * time.Second

var (
	ErrRunning    = errors.New("host is already running")
	ErrNotRunning = errors.New("host is not running")
	ErrStopped    = errors.New("host has been stopped")
)

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// Option configures a Host.
type Option func(*Host)

// WithAdapter replaces the transport selected by cfg.Adapter.
func WithAdapter(adapter transport.Adapter) Option {
	return func(h *Host) {
		h.adapter = adapter
	}
}

// WithStorage replaces the backend selected by cfg.Storage.Driver.
func WithStorage(backend storage.Backend) Option {
	return func(h *Host) {
		h.backend = backend
	}
}

// WithEnviron sets the environment consulted for unit options.
func WithEnviron(env config.Environ) Option {
	return func(h *Host) {
		h.env = env
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// Host connects one transport to the unit registry. It is single use: once
// stopped it cannot be started again.
type Host struct {
	cfg       *config.Config
	root      *slog.Logger
	log       *slog.Logger
	env       config.Environ
	adapter   transport.Adapter
	caps      transport.Capabilities
	backend   storage.Backend
	bus       *bus.MessageBus
	registry  *unit.Registry
	web       *web.Server
	tasks     *task.Supervisor
	targeting *regexp.Regexp

	mu         sync.RWMutex
	state      lifecycle
	cancel     context.CancelFunc
	startedAt  time.Time
	adapterUp  bool
	adapterErr string
	applied    config.UnitsSpec
	syncer     *task.Periodic
}

// New builds a host for cfg whose units come from catalog.
func New(cfg *config.Config, catalog *unit.Catalog, opts ...Option) (*Host, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	h := &Host{
		cfg: cfg,
		log: slog.Default(),
		env: config.OSEnviron(),
		bus: bus.NewMessageBus(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.root = h.log
	baseLog := h.root
	h.log = baseLog.With("component", "host")

	if h.adapter == nil {
		adapter, err := newAdapter(cfg, baseLog)
		if err != nil {
			return nil, err
		}
		h.adapter = adapter
	}
	h.caps = transport.Detect(h.adapter)

	if h.backend == nil {
		backend, err := storage.New(cfg, baseLog)
		if err != nil {
			return nil, fmt.Errorf("configure storage: %w", err)
		}
		h.backend = backend
	}

	targeting, err := targetingPattern(cfg.Name)
	if err != nil {
		return nil, err
	}
	h.targeting = targeting

	h.registry = unit.NewRegistry(catalog, h,
		unit.WithLogger(baseLog),
		unit.WithEnviron(h.env),
		unit.WithObserver(h),
	)
	h.tasks = task.NewSupervisor(func(err error) {
		h.log.Error("Host task failed", "error", err)
	})

	if cfg.Web.Enabled {
		h.web = web.NewServer(cfg.Web, h.unitHandler, h, baseLog)
	}

	return h, nil
}

func targetingPattern(name string) (*regexp.Regexp, error) {
	if name == "" {
		name = config.DefaultName
	}
	pattern, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(name) + `[!:, ]`)
	if err != nil {
		return nil, fmt.Errorf("compile targeting pattern: %w", err)
	}
	return pattern, nil
}

func (h *Host) Registry() *unit.Registry {
	return h.registry
}

func (h *Host) Bus() *bus.MessageBus {
	return h.bus
}

// Web returns the HTTP server, or nil when web.enabled is false.
func (h *Host) Web() *web.Server {
	return h.web
}

// Run starts the host, waits for the transport to finish or ctx to end, and
// stops the host.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}

	joinErr := h.Join(ctx)
	stopErr := h.Stop()
	if errors.Is(joinErr, context.Canceled) {
		joinErr = nil
	}

	return errors.Join(joinErr, stopErr)
}

// Start opens storage, loads the configured units, and brings up the web
// server and the transport.
func (h *Host) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	switch h.state {
	case stateRunning:
		h.mu.Unlock()
		return ErrRunning
	case stateStopped:
		h.mu.Unlock()
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.state = stateRunning
	h.cancel = cancel
	h.startedAt = time.Now().UTC()
	h.mu.Unlock()

	if err := h.start(runCtx); err != nil {
		h.log.Error("Host failed to start", "error", err)
		_ = h.Stop()
		return err
	}

	h.log.Info("Host started", "name", h.cfg.Name, "adapter", h.adapter.Name(), "storage", h.backend.Name(), "units", h.registry.Names())
	return nil
}

func (h *Host) start(ctx context.Context) error {
	if err := h.backend.Start(ctx); err != nil {
		return fmt.Errorf("start storage: %w", err)
	}

	if _, err := h.tasks.Spawn(h.observeEvents); err != nil {
		return err
	}
	if _, err := h.tasks.Spawn(h.consume); err != nil {
		return err
	}

	if err := h.registry.LoadAll(ctx, h.cfg.Units); err != nil {
		return fmt.Errorf("load units: %w", err)
	}
	h.mu.Lock()
	h.applied = h.cfg.Units
	h.mu.Unlock()

	if err := h.startSync(); err != nil {
		return err
	}

	group := new(errgroup.Group)
	if h.web != nil {
		group.Go(func() error {
			return h.web.Start(ctx)
		})
	}
	group.Go(func() error {
		if err := h.adapter.Start(ctx, h.handleInbound); err != nil {
			h.setAdapterState(false, err)
			return fmt.Errorf("start %s transport: %w", h.adapter.Name(), err)
		}
		h.setAdapterState(true, nil)
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	if h.cfg.Watch && h.cfg.Path != "" {
		if err := h.watchConfig(); err != nil {
			return err
		}
	}

	return nil
}

func (h *Host) startSync() error {
	interval := time.Duration(h.cfg.Storage.SyncIntervalSeconds) * time.Second
	if interval <= 0 {
		return nil
	}

	syncer := task.NewPeriodic(h.tasks, interval, func(context.Context) (any, error) {
		return nil, h.registry.SyncAll()
	})
	if err := syncer.Start(false); err != nil {
		return fmt.Errorf("start storage sync: %w", err)
	}

	h.mu.Lock()
	h.syncer = syncer
	h.mu.Unlock()
	return nil
}

// Join blocks until the transport stops on its own or ctx ends. Transports
// that cannot join block until ctx ends.
func (h *Host) Join(ctx context.Context) error {
	if h.caps.Joiner == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	err := h.caps.Joiner.Join(ctx)
	if err != nil && ctx.Err() == nil {
		h.setAdapterState(false, err)
	}
	return err
}

// Stop unloads every unit in reverse load order and shuts down the
// transport, web server, background tasks and storage.
func (h *Host) Stop() error {
	h.mu.Lock()
	if h.state != stateRunning {
		h.mu.Unlock()
		return ErrNotRunning
	}
	h.state = stateStopped
	cancel, syncer, adapterUp := h.cancel, h.syncer, h.adapterUp
	h.mu.Unlock()

	var errs []error

	group := new(errgroup.Group)
	if adapterUp {
		group.Go(func() error {
			if err := h.adapter.Stop(); err != nil {
				return fmt.Errorf("stop %s transport: %w", h.adapter.Name(), err)
			}
			return nil
		})
	}
	if h.web != nil && h.web.Addr() != "" {
		group.Go(h.web.Shutdown)
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	h.setAdapterState(false, nil)

	if syncer != nil && syncer.Started() {
		_ = syncer.Stop()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := h.registry.Close(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("unload units: %w", err))
	}

	cancel()
	h.tasks.CancelAll()
	if err := h.tasks.Wait(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("wait for host tasks: %w", err))
	}
	h.bus.Close()

	if err := h.backend.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop storage: %w", err))
	}

	h.log.Info("Host stopped")
	return errors.Join(errs...)
}

func (h *Host) setAdapterState(up bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.adapterUp = up
	if err != nil {
		h.adapterErr = err.Error()
	}
}

// Status reports host state for the web health endpoints.
func (h *Host) Status() web.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uptime := int64(0)
	if !h.startedAt.IsZero() {
		uptime = int64(time.Since(h.startedAt).Seconds())
	}

	return web.Status{
		UptimeSeconds: uptime,
		Adapter:       h.adapter.Name(),
		AdapterUp:     h.adapterUp,
		AdapterError:  h.adapterErr,
		Units:         h.registry.Names(),
	}
}

// Ready reports whether the host is running with a live transport.
func (h *Host) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.state == stateRunning && h.adapterUp
}

func (h *Host) unitHandler(name string) http.Handler {
	u, ok := h.registry.Get(name)
	if !ok {
		return nil
	}
	return u.HTTPHandler()
}

// Targeting reports whether text addresses the bot by name.
func (h *Host) Targeting(text string) bool {
	return h.targeting.MatchString(text)
}

var _ message.Sender = (*Host)(nil)
var _ unit.Host = (*Host)(nil)
var _ unit.Observer = (*Host)(nil)
var _ web.StatusSource = (*Host)(nil)
