package bcu

import (
	"errors"
	"fmt"
)

// Device errors.
var (
	// ErrUninitialized is returned when the device is used before boot
	// completed.
	ErrUninitialized = errors.New("device not initialized")

	// ErrNotRunning is returned by operations that need a running device.
	ErrNotRunning = errors.New("device not running")

	// ErrHalted is returned after a fatal error stopped the device.
	ErrHalted = errors.New("device halted")

	// ErrConfigurationMismatch is returned when a variant does not fit the
	// hardware it is booted on.
	ErrConfigurationMismatch = errors.New("configuration mismatch")

	// ErrDropped is returned by Receive for a telegram that was discarded.
	ErrDropped = errors.New("telegram dropped")
)

// MismatchError describes a boot-time configuration mismatch.
type MismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("configuration mismatch: %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// Is matches ErrConfigurationMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrConfigurationMismatch
}
