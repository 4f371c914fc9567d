package memory

import (
	"errors"
	"fmt"
)

// Memory errors.
var (
	// ErrOutOfRange is returned for an offset or length outside a region.
	ErrOutOfRange = errors.New("address out of range")

	// ErrCommitFailure is returned when flash erase or program failed
	// after the retry.
	ErrCommitFailure = errors.New("commit failure")

	// ErrInvalidConfig is returned for inconsistent region dimensions.
	ErrInvalidConfig = errors.New("invalid region config")

	// ErrExceedsFlash is returned when a region does not fit its flash.
	ErrExceedsFlash = errors.New("region exceeds flash")

	// ErrVerify is returned when programmed data does not read back.
	ErrVerify = errors.New("flash verify mismatch")
)

// RangeError describes an access outside a region.
type RangeError struct {
	Region string
	Offset uint32
	Len    int
	Size   uint32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: offset 0x%x len %d outside 0x0..0x%x", e.Region, e.Offset, e.Len, e.Size)
}

// Unwrap returns ErrOutOfRange.
func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// CommitError describes a page that could not be committed.
type CommitError struct {
	Region   string
	Page     uint32
	Attempts int
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s: commit page 0x%x failed after %d attempts: %v", e.Region, e.Page, e.Attempts, e.Err)
}

// Is matches ErrCommitFailure.
func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailure
}

// Unwrap returns the flash error.
func (e *CommitError) Unwrap() error {
	return e.Err
}
