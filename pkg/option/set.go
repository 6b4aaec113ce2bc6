package option

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"jeev/pkg/config"
)

// Opt declares one named option of a unit.
type Opt struct {
	Name        string
	Description string
	Cast        CastFunc
	Default     any
	HasDefault  bool
}

// DeclareOption customizes an Opt at declaration time.
type DeclareOption func(*Opt)

// WithCast sets the conversion applied to raw, environment and default values.
func WithCast(cast CastFunc) DeclareOption {
	return func(o *Opt) {
		o.Cast = cast
	}
}

// WithDefault makes the option optional.
func WithDefault(value any) DeclareOption {
	return func(o *Opt) {
		o.Default = value
		o.HasDefault = true
	}
}

// ValidatorFunc checks a resolved value. The returned value replaces the
// option's value as an uncast override.
type ValidatorFunc func(value any) (any, error)

type validator struct {
	field string
	fn    ValidatorFunc
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithEnviron replaces the process environment as the fallback source.
func WithEnviron(env config.Environ) SetOption {
	return func(s *Set) {
		s.env = env
	}
}

// Set holds one unit's option declarations and resolves reads against raw
// values, the environment, and declared defaults.
type Set struct {
	unit string
	raw  map[string]any
	env  config.Environ

	mu         sync.RWMutex
	opts       map[string]Opt
	order      []string
	validators []validator
	overrides  map[string]any
}

// NewSet builds the option set of unit from its raw configuration values.
func NewSet(unit string, raw map[string]any, options ...SetOption) *Set {
	s := &Set{
		unit:      unit,
		raw:       maps.Clone(raw),
		env:       config.OSEnviron(),
		opts:      make(map[string]Opt),
		overrides: make(map[string]any),
	}
	if s.raw == nil {
		s.raw = map[string]any{}
	}
	for _, option := range options {
		option(s)
	}

	return s
}

// Unit returns the owning unit name.
func (s *Set) Unit() string {
	return s.unit
}

// Raw returns a copy of the supplied raw values.
func (s *Set) Raw() map[string]any {
	return maps.Clone(s.raw)
}

// Declare registers an option. Redeclaring a name replaces the earlier
// definition but keeps its position.
func (s *Set) Declare(name string, description string, options ...DeclareOption) {
	opt := Opt{Name: name, Description: description}
	for _, option := range options {
		option(&opt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.opts[name]; !exists {
		s.order = append(s.order, name)
	}
	s.opts[name] = opt
}

// RegisterValidator adds a validator for field, run by Validate in
// registration order.
func (s *Set) RegisterValidator(field string, fn ValidatorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.validators = append(s.validators, validator{field: field, fn: fn})
}

// Names returns declared option names in declaration order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order)
}

// Opt returns the declaration for name.
func (s *Set) Opt(name string) (Opt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opt, ok := s.opts[name]
	return opt, ok
}

// EnvKey returns the environment variable consulted for name.
func (s *Set) EnvKey(name string) string {
	return config.EnvKey(s.unit, name)
}

// Validate reports every missing required option and every validator
// failure in one *ConfigError. Validators of fields that are missing or
// fail to cast are skipped; every other validator runs.
func (s *Set) Validate() error {
	s.mu.RLock()
	order := slices.Clone(s.order)
	opts := maps.Clone(s.opts)
	validators := slices.Clone(s.validators)
	s.mu.RUnlock()

	errs := &ConfigError{}
	for _, name := range order {
		opt := opts[name]
		value, source := config.Resolve(s.unit, name, s.raw, s.env)
		if source == config.SourceNone {
			if !opt.HasDefault {
				errs.Add(name, "required")
			}
			continue
		}
		if _, err := castWith(opt.Cast, value); err != nil {
			errs.Add(name, fmt.Sprintf("invalid %s value: %v", source, err))
		}
	}

	invalid := errs.Fields()
	for _, v := range validators {
		if slices.Contains(invalid, v.field) {
			continue
		}

		replacement, err := s.runValidator(v)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				errs.Merge(cfgErr, v.field)
			} else {
				errs.Add(v.field, err.Error())
			}
			continue
		}

		s.mu.Lock()
		s.overrides[v.field] = replacement
		s.mu.Unlock()
	}

	return errs.errOrNil()
}

func (s *Set) runValidator(v validator) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("validator panic: %v", recovered)
		}
	}()

	return v.fn(s.Get(v.field, nil))
}

// Get returns the resolved value of name, or fallback when it cannot be
// resolved or cast.
func (s *Set) Get(name string, fallback any) any {
	value, err := s.Lookup(name)
	if err != nil {
		return fallback
	}

	return value
}

// Lookup resolves name: validator override, then raw value, then
// environment, then declared default. Everything but overrides passes
// through the declared cast.
func (s *Set) Lookup(name string) (any, error) {
	s.mu.RLock()
	override, overridden := s.overrides[name]
	opt, declared := s.opts[name]
	s.mu.RUnlock()

	if overridden {
		return override, nil
	}

	if value, source := config.Resolve(s.unit, name, s.raw, s.env); source != config.SourceNone {
		cast, err := castWith(opt.Cast, value)
		if err != nil {
			return nil, fmt.Errorf("option %q of unit %q: %w", name, s.unit, err)
		}
		return cast, nil
	}

	if declared && opt.HasDefault {
		cast, err := castWith(opt.Cast, opt.Default)
		if err != nil {
			return nil, fmt.Errorf("default of option %q of unit %q: %w", name, s.unit, err)
		}
		return cast, nil
	}

	return nil, &MissingOptionError{Unit: s.unit, Name: name, EnvKey: s.EnvKey(name)}
}

// String resolves name as a string.
func (s *Set) String(name string) (string, error) {
	value, err := s.Lookup(name)
	if err != nil {
		return "", err
	}

	return fmt.Sprint(value), nil
}

// Int resolves name as an int.
func (s *Set) Int(name string) (int, error) {
	value, err := s.lookupAs(name, CastInt)
	if err != nil {
		return 0, err
	}

	return value.(int), nil
}

// Bool resolves name as a bool.
func (s *Set) Bool(name string) (bool, error) {
	value, err := s.lookupAs(name, CastBool)
	if err != nil {
		return false, err
	}

	return value.(bool), nil
}

// Duration resolves name as a time.Duration.
func (s *Set) Duration(name string) (time.Duration, error) {
	value, err := s.lookupAs(name, CastDuration)
	if err != nil {
		return 0, err
	}

	return value.(time.Duration), nil
}

func (s *Set) lookupAs(name string, cast CastFunc) (any, error) {
	value, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}

	converted, err := cast(value)
	if err != nil {
		return nil, fmt.Errorf("option %q of unit %q: %w", name, s.unit, err)
	}

	return converted, nil
}

func castWith(cast CastFunc, value any) (any, error) {
	if cast == nil {
		cast = CastString
	}

	return cast(value)
}

// Describe renders one line per invalid field of err, naming the option's
// description and environment variable where known. Errors that are not a
// *ConfigError yield a single line.
func Describe(s *Set, err error) []string {
	if err == nil {
		return nil
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		return []string{err.Error()}
	}

	lines := make([]string, 0, cfgErr.Len())
	for _, field := range cfgErr.Fields() {
		line := fmt.Sprintf("%s: %s", field, strings.Join(cfgErr.Messages(field), ", "))
		if s != nil {
			if opt, declared := s.Opt(field); declared && opt.Description != "" {
				line += fmt.Sprintf(" (%s)", opt.Description)
			}
			line += fmt.Sprintf(" [env %s]", s.EnvKey(field))
		}
		lines = append(lines, line)
	}

	return lines
}
