// Package raid implements a mirrored block-storage driver over a remote
// RAID array reached over a socket.
package raid

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates the driver's error kinds.
type ErrorCode string

const (
	// ErrCodeAlloc is raised by init only: allocation failure.
	ErrCodeAlloc ErrorCode = "alloc"

	// ErrCodeTransport is raised by the bus client or wire codec.
	ErrCodeTransport ErrorCode = "transport"

	// ErrCodeMalformedResponse is a wire codec mismatch, treated as Transport.
	ErrCodeMalformedResponse ErrorCode = "malformed response"

	// ErrCodeDiskFailed is raised by status_poll; never surfaced directly,
	// it triggers recover.
	ErrCodeDiskFailed ErrorCode = "disk failed"

	// ErrCodeRecoveryFailed is raised by recover on a transport error
	// during rebuild, surfaced from status_poll as fail.
	ErrCodeRecoveryFailed ErrorCode = "recovery failed"

	// ErrCodeIO covers read/write failures not otherwise classified.
	ErrCodeIO ErrorCode = "I/O error"

	// ErrCodeInvalid covers caller misuse (bad tag, overlong count, etc).
	ErrCodeInvalid ErrorCode = "invalid parameters"
)

// Error is a structured driver error carrying the failing operation, the
// error kind, and the wrapped cause.
type Error struct {
	Op    string    // operation that failed, e.g. "init", "write"
	Code  ErrorCode // high-level error category
	Tag   int       // tag number, -1 if not applicable
	Disk  int       // disk number, -1 if not applicable
	Msg   string    // human-readable message
	Inner error     // wrapped error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Disk >= 0 && e.Tag >= 0:
		return fmt.Sprintf("raid: %s: %s (tag=%d disk=%d)", e.Op, msg, e.Tag, e.Disk)
	case e.Disk >= 0:
		return fmt.Sprintf("raid: %s: %s (disk=%d)", e.Op, msg, e.Disk)
	case e.Tag >= 0:
		return fmt.Sprintf("raid: %s: %s (tag=%d)", e.Op, msg, e.Tag)
	default:
		return fmt.Sprintf("raid: %s: %s", e.Op, msg)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no tag/disk context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Tag: -1, Disk: -1, Msg: msg}
}

// NewTagError creates a structured error scoped to a tag.
func NewTagError(op string, tag int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Tag: tag, Disk: -1, Msg: msg}
}

// NewDiskError creates a structured error scoped to a disk.
func NewDiskError(op string, disk int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Tag: -1, Disk: disk, Msg: msg}
}

// WrapError wraps an existing error under a transport-style code, unless
// it is already a structured *Error, in which case only Op is replaced.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: re.Code, Tag: re.Tag, Disk: re.Disk, Msg: re.Msg, Inner: re.Inner}
	}
	return &Error{Op: op, Code: code, Tag: -1, Disk: -1, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
