package models

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by validation errors for absent required fields.
var ErrMissingField = errors.New("missing required field")

// InvalidScheduleError reports a malformed fee schedule.
type InvalidScheduleError struct {
	Field  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid fee schedule: %s %s", e.Field, e.Reason)
}

// CatalogUnavailableError reports a failed request against the remote catalog.
// StatusCode is zero for transport errors.
type CatalogUnavailableError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *CatalogUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog unavailable: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("catalog unavailable: %s: %v", e.Op, e.Err)
}

func (e *CatalogUnavailableError) Unwrap() error { return e.Err }

// PersistenceCorruptionError reports an unreadable persisted registry.
type PersistenceCorruptionError struct {
	Path string
	Err  error
}

func (e *PersistenceCorruptionError) Error() string {
	return fmt.Sprintf("corrupt registry file %s: %v", e.Path, e.Err)
}

func (e *PersistenceCorruptionError) Unwrap() error { return e.Err }

// MirrorParseError reports a tracked value that is not a price pair.
type MirrorParseError struct {
	EntityID string
	Value    any
}

func (e *MirrorParseError) Error() string {
	return fmt.Sprintf("entity %s: value %v (%T) is not a price pair", e.EntityID, e.Value, e.Value)
}
