package unit

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"jeev/pkg/config"
	"jeev/pkg/option"
)

// Definition describes a unit compiled into the binary.
type Definition struct {
	Name        string
	Author      string
	Description string
	// Setup registers the unit's handlers, options and hooks. It runs once
	// per load on a fresh *Unit.
	Setup func(u *Unit) error
}

// Catalog is the set of units that can be loaded by name.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewCatalog builds a catalog. Later definitions replace earlier ones with
// the same name.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		c.defs[def.Name] = def
	}
	return c
}

// Register adds def, failing if the name is taken.
func (c *Catalog) Register(def Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if def.Name == "" {
		return fmt.Errorf("unit definition has no name")
	}
	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%q: %w", def.Name, ErrDuplicateUnit)
	}
	c.defs[def.Name] = def
	return nil
}

func (c *Catalog) Lookup(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	return def, ok
}

// Names returns every catalog entry in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.defs))
}

// Inspect runs a unit's Setup against raw options without loading it and
// returns the resulting option set. Nothing the setup spawned keeps running.
func (c *Catalog) Inspect(name string, raw map[string]any, env config.Environ) (*option.Set, error) {
	def, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnitNotFound)
	}
	if env == nil {
		env = config.OSEnviron()
	}

	set := option.NewSet(name, raw, option.WithEnviron(env))
	u := newUnit(def, set, nil, nil, slog.New(slog.DiscardHandler))
	defer u.teardown()

	if def.Setup != nil {
		if err := callSetup(def.Setup, u); err != nil {
			return nil, fmt.Errorf("set up unit %q: %w", name, err)
		}
	}

	return set, nil
}
