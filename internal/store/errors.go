package store

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrAlreadyInitialized = errors.New("store already initialized")
	ErrInvalidMemory      = errors.New("invalid memory")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrStorage            = errors.New("storage error")
	ErrNotFound           = errors.New("store not found")
)

// Error carries the failing operation and the project or file path.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func storageErr(op, path string, err error) error {
	return newError(ErrStorage, op, path, err)
}

func invalidMemory(op, format string, args ...any) error {
	return newError(ErrInvalidMemory, op, "", fmt.Errorf(format, args...))
}
