package fs

import "errors"

// Package-specific sentinel errors usable with errors.Is, the same
// pattern the teacher uses for ErrInvalidFile/ErrInvalidSuper/etc
// (errors.go). Every entry point in this package returns one of these
// (wrapped with context via fmt.Errorf("...: %w", ...)) rather than a
// bare -1, the hosted equivalent of spec.md §7's error kinds.
var (
	ErrNotFound  = errors.New("fs: no such file or directory")
	ErrExists    = errors.New("fs: file exists")
	ErrNotDir    = errors.New("fs: not a directory")
	ErrIsDir     = errors.New("fs: is a directory")
	ErrNoSpace   = errors.New("fs: no space left on device")
	ErrBusy      = errors.New("fs: resource busy")
	ErrTooLarge  = errors.New("fs: file too large")
	ErrInvalid   = errors.New("fs: invalid argument")
	ErrNotEmpty  = errors.New("fs: directory not empty")
)
