package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches any DecodeError via errors.Is.
	ErrDecode = errors.New("decode issue store")

	// ErrIO matches any IOError via errors.Is.
	ErrIO = errors.New("issue store i/o")
)

// DecodeError reports a persisted document that exists but does not match
// the schema. There is no automatic recovery.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode issue store %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// IOError reports a failed read, write or rename of the persisted document.
// A mutation whose save fails with an IOError has not been committed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s issue store %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }
