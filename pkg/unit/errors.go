package unit

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateUnit = errors.New("unit is already loaded")
	ErrReservedName  = errors.New("unit name is reserved")
	ErrUnknownUnit   = errors.New("unit is not loaded")
	ErrUnitNotFound  = errors.New("unit is not in the catalog")
	ErrUnloaded      = errors.New("unit is unloaded")
)

// Stop, returned by a handler, ends processing of the current message for
// the handler's unit. Other units still receive the message.
var Stop = errors.New("stop handling message")

// LoadError names the unit whose load failed during LoadAll.
type LoadError struct {
	Unit string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load unit %q: %v", e.Unit, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
