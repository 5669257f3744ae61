package proc

import "errors"

var (
	ErrBadFD     = errors.New("proc: bad file descriptor")
	ErrTableFull = errors.New("proc: open-file table full")
	ErrNoChild   = errors.New("proc: no child to wait for")
)
