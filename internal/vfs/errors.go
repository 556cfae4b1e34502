package vfs

import (
	"errors"

	"github.com/opensandbox/canvas/internal/vpath"
)

// Sentinel errors. Every failing operation returns a *PathError wrapping one of
// these, so callers match with errors.Is.
var (
	ErrPathConflict     = errors.New("path already exists")
	ErrInvalidPath      = vpath.ErrInvalid
	ErrNotFound         = errors.New("no such file or directory")
	ErrNotADirectory    = errors.New("not a directory")
	ErrIsADirectory     = errors.New("is a directory")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
)

// PathError records the operation and path that failed.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func pathErr(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}
