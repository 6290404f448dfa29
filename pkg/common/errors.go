package common

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a missing or malformed required field.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a referenced device or alert that does not exist.
	ErrNotFound = errors.New("not found")
)

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
