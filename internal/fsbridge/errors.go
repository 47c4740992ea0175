package fsbridge

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// OSError is a failed OS call. The bridge propagates these and never retries;
// retry policy belongs to the caller.
type OSError struct {
	Code	unix.Errno
	Message	string
	Path	string
}

func (e *OSError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Submission-time failures. These are rejected before any native call is
// made, so no completion will ever arrive for them.
var ErrInvalidUsage = errors.New("fsbridge: buffer too small for requested range")
var ErrAllocation = errors.New("fsbridge: could not allocate request storage")
var ErrRegistryFull = errors.New("fsbridge: callback registry full")
