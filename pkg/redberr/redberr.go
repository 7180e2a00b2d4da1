// Package redberr defines the closed set of error kinds the engine can
// return to a caller, as sentinel values compatible with errors.Is.
package redberr

import "errors"

// ErrIO wraps a failure from the underlying file or mapping.
var ErrIO = errors.New("redb: io error")

// ErrCorruption indicates a magic mismatch or an invalid node type byte
// encountered mid-traversal. The database should be reopened; the engine
// does not attempt self-repair.
var ErrCorruption = errors.New("redb: corruption")

// ErrValueTooLarge indicates a single entry does not fit in one page.
var ErrValueTooLarge = errors.New("redb: value too large for a page")

// ErrTableNameEmpty is the precondition failure on OpenTable("").
var ErrTableNameEmpty = errors.New("redb: table name must not be empty")

// IO wraps err as an IoError, preserving it for errors.Unwrap/errors.Is.
func IO(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: ErrIO, err: err}
}

// Corruption builds a Corruption error carrying msg.
func Corruption(msg string) error {
	return &wrapped{kind: ErrCorruption, err: errors.New(msg)}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string {
	if w.err == nil {
		return w.kind.Error()
	}
	return w.kind.Error() + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.err}
}
