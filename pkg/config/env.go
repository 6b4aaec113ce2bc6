package config

import (
	"os"
	"strings"
)

// EnvPrefix prefixes every environment variable the host reads.
const EnvPrefix = "JEEV"

// Environ looks up one environment variable.
type Environ func(key string) (string, bool)

// OSEnviron reads the process environment.
func OSEnviron() Environ {
	return os.LookupEnv
}

// MapEnviron serves lookups from a fixed map.
func MapEnviron(values map[string]string) Environ {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

// Source names where a resolved option value came from.
type Source int

const (
	SourceNone Source = iota
	SourceRaw
	SourceEnv
)

func (s Source) String() string {
	switch s {
	case SourceRaw:
		return "raw"
	case SourceEnv:
		return "env"
	default:
		return "none"
	}
}

// EnvKey returns the fallback variable for one unit option, for example
// JEEV_FOO_BAR for unit "foo" option "bar". Dots in the unit name become
// underscores. An empty unit yields JEEV_<OPTION>.
func EnvKey(unit string, option string) string {
	unit = strings.ReplaceAll(strings.TrimSpace(unit), ".", "_")
	if unit == "" {
		return strings.ToUpper(EnvPrefix + "_" + option)
	}

	return strings.ToUpper(EnvPrefix + "_" + unit + "_" + option)
}

// Resolve looks an option up in the supplied raw values first and the
// environment second. It never casts.
func Resolve(unit string, option string, raw map[string]any, env Environ) (any, Source) {
	if value, ok := raw[option]; ok {
		return value, SourceRaw
	}

	if env == nil {
		return nil, SourceNone
	}

	if value, ok := env(EnvKey(unit, option)); ok {
		return value, SourceEnv
	}

	return nil, SourceNone
}
