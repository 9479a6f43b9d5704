// Package sentinel holds store-level errors that services translate into
// domain errors at their boundary.
package sentinel

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
