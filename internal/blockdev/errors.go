package blockdev

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pechfunk/sbnbd/internal/bandfile"
)

// InvalidArgumentError is raised for caller errors: negative or
// out-of-range offset/length, detected before any band I/O is attempted.
// Its wire errno is unix.EINVAL (22).
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return "blockdev: invalid argument: " + e.Msg }

// ReadOnlyError is raised when a write is attempted against a device opened
// read-only.
type ReadOnlyError struct{}

func (e *ReadOnlyError) Error() string { return "blockdev: write to read-only volume" }

// Errno extracts the wire-protocol error code for err: the numeric code of
// the underlying syscall.Errno if there is one, a fixed code for the
// package's own sentinel error types, or a generic EIO for anything else
// that reached the block device boundary without a more specific code.
func Errno(err error) uint32 {
	if err == nil {
		return 0
	}
	var invalid *InvalidArgumentError
	if errors.As(err, &invalid) {
		return uint32(unix.EINVAL)
	}
	var readOnly *ReadOnlyError
	if errors.As(err, &readOnly) {
		return uint32(unix.EROFS)
	}
	if errors.Is(err, bandfile.ErrBandAbsent) {
		return uint32(unix.ENOENT)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return uint32(unix.EIO)
}
