package option

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrMissingOption matches every MissingOptionError.
var ErrMissingOption = errors.New("option is not set")

// MissingOptionError reports a read of an option with no resolvable value.
type MissingOptionError struct {
	Unit   string
	Name   string
	EnvKey string
}

func (e *MissingOptionError) Error() string {
	return fmt.Sprintf("option %q of unit %q is not set (env %s)", e.Name, e.Unit, e.EnvKey)
}

func (e *MissingOptionError) Is(target error) bool {
	return target == ErrMissingOption
}

// ConfigError collects validation messages keyed by option name.
type ConfigError struct {
	fields map[string][]string
}

// NewConfigError builds a single-field error; validators return it to
// reject a value.
func NewConfigError(field string, message string) *ConfigError {
	e := &ConfigError{}
	e.Add(field, message)
	return e
}

// Add records one message under field.
func (e *ConfigError) Add(field string, message string) {
	if e.fields == nil {
		e.fields = make(map[string][]string)
	}
	e.fields[field] = append(e.fields[field], message)
}

// Merge copies every message of other into e. Messages recorded without a
// field name are filed under fallbackField.
func (e *ConfigError) Merge(other *ConfigError, fallbackField string) {
	if other == nil {
		return
	}
	for field, messages := range other.fields {
		if field == "" {
			field = fallbackField
		}
		for _, message := range messages {
			e.Add(field, message)
		}
	}
}

// Has reports whether field already carries an error.
func (e *ConfigError) Has(field string) bool {
	return len(e.fields[field]) > 0
}

// Len returns the number of invalid fields.
func (e *ConfigError) Len() int {
	return len(e.fields)
}

// Fields returns invalid field names in sorted order.
func (e *ConfigError) Fields() []string {
	return slices.Sorted(maps.Keys(e.fields))
}

// Messages returns the messages recorded for field.
func (e *ConfigError) Messages(field string) []string {
	return slices.Clone(e.fields[field])
}

func (e *ConfigError) Error() string {
	fields := e.Fields()
	if len(fields) == 1 && len(e.fields[fields[0]]) == 1 {
		return fmt.Sprintf("%s: %s", fields[0], e.fields[fields[0]][0])
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.fields[field], ", ")))
	}

	return "invalid configuration: " + strings.Join(parts, "; ")
}

func (e *ConfigError) errOrNil() error {
	if e.Len() == 0 {
		return nil
	}

	return e
}
