package host

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"jeev/pkg/config"
	"jeev/pkg/unit"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// unitsPlan is the set of registry changes that turns one units spec into
// another.
type unitsPlan struct {
	Unload []string
	Load   config.UnitsSpec
	Reload config.UnitsSpec
}

func (p unitsPlan) empty() bool {
	return len(p.Unload) == 0 && len(p.Load) == 0 && len(p.Reload) == 0
}

// planUnits compares two specs. Units whose option maps changed are
// reloaded; order follows next for loads and current for unloads.
func planUnits(current config.UnitsSpec, next config.UnitsSpec) unitsPlan {
	var plan unitsPlan

	for _, entry := range current {
		if !next.Has(entry.Name) {
			plan.Unload = append(plan.Unload, entry.Name)
		}
	}

	for _, entry := range next {
		previous, ok := current.Lookup(entry.Name)
		switch {
		case !ok:
			plan.Load = append(plan.Load, entry)
		case !sameOptions(previous.Options, entry.Options):
			plan.Reload = append(plan.Reload, entry)
		}
	}

	return plan
}

func sameOptions(a map[string]any, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ApplyUnits moves the registry toward next. The plan is built from the
// units that are actually loaded, so units that failed earlier are retried.
// New units load one by one; a failure never blocks the others. Every step
// is attempted and failures are joined.
func (h *Host) ApplyUnits(ctx context.Context, next config.UnitsSpec) error {
	plan := planUnits(h.loadedUnits(), next)

	var errs []error
	if !plan.empty() {
		for _, name := range plan.Unload {
			if err := h.registry.Unload(name); err != nil {
				errs = append(errs, err)
			}
		}
		for _, entry := range plan.Reload {
			if _, err := h.registry.Reload(ctx, entry.Name, entry.Options); err != nil {
				errs = append(errs, fmt.Errorf("reload unit %q: %w", entry.Name, err))
			}
		}
		for _, entry := range plan.Load {
			if _, err := h.registry.Load(ctx, entry.Name, entry.Options); err != nil {
				errs = append(errs, &unit.LoadError{Unit: entry.Name, Err: err})
			}
		}
		h.log.Info("Units reconfigured", "unloaded", plan.Unload, "loaded", plan.Load.Names(), "reloaded", plan.Reload.Names())
	}

	applied := make(config.UnitsSpec, 0, len(next))
	for _, entry := range next {
		if _, ok := h.registry.Get(entry.Name); ok {
			applied = append(applied, entry)
		}
	}
	h.mu.Lock()
	h.applied = applied
	h.mu.Unlock()

	return errors.Join(errs...)
}

// loadedUnits describes the registry as a units spec. Options come from the
// last applied spec; units loaded some other way carry none.
func (h *Host) loadedUnits() config.UnitsSpec {
	h.mu.RLock()
	applied := h.applied
	h.mu.RUnlock()

	names := h.registry.Names()
	current := make(config.UnitsSpec, 0, len(names))
	for _, name := range names {
		entry, ok := applied.Lookup(name)
		if !ok {
			entry = config.UnitEntry{Name: name}
		}
		current = append(current, entry)
	}
	return current
}

// watchConfig reloads the units section whenever the config file changes.
// The directory is watched so editors that replace the file are seen.
func (h *Host) watchConfig() error {
	path, err := filepath.Abs(h.cfg.Path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	_, err = h.tasks.Spawn(func(ctx context.Context) (any, error) {
		defer watcher.Close()
		return nil, h.runWatcher(ctx, watcher, path)
	})
	if err != nil {
		_ = watcher.Close()
		return err
	}

	h.log.Info("Watching config for unit changes", "path", path)
	return nil
}

func (h *Host) runWatcher(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.log.Warn("Config watcher error", "error", err)
		case <-timer.C:
			h.reloadConfig(ctx, path)
		}
	}
}

func (h *Host) reloadConfig(ctx context.Context, path string) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		h.log.Error("Config reload failed", "path", path, "error", err)
		return
	}

	if err := h.ApplyUnits(ctx, cfg.Units); err != nil {
		h.log.Error("Config reload applied with errors", "error", err)
	}
}
