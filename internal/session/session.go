// Package session manages the lifecycle of case directories: temporary
// case creation from a base template, opening saved cases, save-as,
// discard, dirty tracking, and the startup sweep that removes abandoned
// temporary cases.
package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for session operations.
var (
	ErrNoSession    = errors.New("no current session")
	ErrNotTemporary = errors.New("session is not temporary")
	ErrInvalidCase  = errors.New("invalid case directory")
)

// InvalidCaseError describes a directory that cannot be opened as a case.
type InvalidCaseError struct {
	Path   string
	Reason string
}

func (e *InvalidCaseError) Error() string {
	return fmt.Sprintf("invalid case %s: %s", e.Path, e.Reason)
}

func (e *InvalidCaseError) Unwrap() error {
	return ErrInvalidCase
}

// IOError describes a filesystem failure during a session operation.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Session is a snapshot of the current case session. Instances are
// value copies; all mutation goes through the Manager.
type Session struct {
	ID          string // Manifest UUID
	Path        string // Absolute case directory
	IsTemporary bool   // Lives under the temp root, janitor-eligible once abandoned
	IsDirty     bool   // Unsaved changes since open/save
	CreatedAt   time.Time
}
