package tracker

import "errors"

var (
	// ErrNotFound is returned when no issue matches the given id.
	ErrNotFound = errors.New("issue not found")

	// ErrAlreadyClosed is returned when mutating an issue that is closed or rejected.
	ErrAlreadyClosed = errors.New("issue already closed")

	// ErrAmbiguousID is returned when an id prefix matches more than one issue.
	ErrAmbiguousID = errors.New("ambiguous issue id")

	// ErrInvalidArgument is returned for arguments outside their allowed values.
	ErrInvalidArgument = errors.New("invalid argument")
)
