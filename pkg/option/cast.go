package option

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CastFunc converts a raw, environment, or default value into the option's type.
type CastFunc func(value any) (any, error)

// CastString is the default cast: plain string coercion.
func CastString(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}

	return fmt.Sprint(value), nil
}

// CastInt accepts Go integers, whole floats, and decimal strings.
func CastInt(value any) (any, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != float64(int(typed)) {
			return nil, fmt.Errorf("%v is not a whole number", typed)
		}
		return int(typed), nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(value)))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", fmt.Sprint(value))
		}
		return n, nil
	}
}

// CastBool accepts booleans and the usual true/false spellings.
func CastBool(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}

	switch strings.ToLower(strings.TrimSpace(fmt.Sprint(value))) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return nil, fmt.Errorf("%q is not a boolean", fmt.Sprint(value))
	}
}

// CastDuration accepts time.Duration, Go duration strings, or a number of seconds.
func CastDuration(value any) (any, error) {
	switch typed := value.(type) {
	case time.Duration:
		return typed, nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	}

	text := strings.TrimSpace(fmt.Sprint(value))
	if seconds, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(text)
	if err != nil {
		return nil, fmt.Errorf("%q is not a duration", text)
	}

	return d, nil
}

// CastStringList accepts a string slice or a comma-separated string.
func CastStringList(value any) (any, error) {
	switch typed := value.(type) {
	case []string:
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}

	parts := strings.Split(fmt.Sprint(value), ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out, nil
}
