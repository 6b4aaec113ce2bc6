package config

import (
	"fmt"
	"maps"
	"slices"
)

// UnitEntry is one unit to load and the raw options supplied for it.
type UnitEntry struct {
	Name    string
	Options map[string]any
}

// UnitsSpec is the ordered list of units a host loads at startup.
type UnitsSpec []UnitEntry

// Has reports whether name appears in the spec.
func (s UnitsSpec) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the entry for name.
func (s UnitsSpec) Lookup(name string) (UnitEntry, bool) {
	for _, entry := range s {
		if entry.Name == name {
			return entry, true
		}
	}

	return UnitEntry{}, false
}

// Names returns unit names in spec order.
func (s UnitsSpec) Names() []string {
	names := make([]string, 0, len(s))
	for _, entry := range s {
		names = append(names, entry.Name)
	}

	return names
}

// ParseUnitsSpec normalizes the decoded "units" value.
//
// A mapping yields one entry per key in sorted name order (decoded maps carry
// no order); a list or a comma-separated string yields option-less entries
// in the given order.
func ParseUnitsSpec(raw any) (UnitsSpec, error) {
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case string:
		names := parseCSV(typed)
		spec := make(UnitsSpec, 0, len(names))
		for _, name := range names {
			spec = append(spec, UnitEntry{Name: name, Options: map[string]any{}})
		}
		return spec, nil
	case []string:
		return ParseUnitsSpec(anySlice(typed))
	case []any:
		spec := make(UnitsSpec, 0, len(typed))
		for i, item := range typed {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("units[%d]: expected unit name, got %T", i, item)
			}
			for _, part := range parseCSV(name) {
				spec = append(spec, UnitEntry{Name: part, Options: map[string]any{}})
			}
		}
		return spec, nil
	case map[string]any:
		spec := make(UnitsSpec, 0, len(typed))
		for _, name := range slices.Sorted(maps.Keys(typed)) {
			options, err := optionMap(name, typed[name])
			if err != nil {
				return nil, err
			}
			spec = append(spec, UnitEntry{Name: name, Options: options})
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("units: unsupported value of type %T", raw)
	}
}

func optionMap(unitName string, raw any) (map[string]any, error) {
	switch typed := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return maps.Clone(typed), nil
	case map[any]any:
		options := make(map[string]any, len(typed))
		for key, value := range typed {
			options[fmt.Sprint(key)] = value
		}
		return options, nil
	default:
		return nil, fmt.Errorf("units.%s: expected option mapping, got %T", unitName, raw)
	}
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}

	return out
}
