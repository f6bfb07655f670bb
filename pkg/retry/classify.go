package retry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

// FailureClass categorizes a failed attempt for the retry loop.
type FailureClass int

const (
	Unclassified FailureClass = iota // propagate immediately
	Transient                        // record and retry
	Permanent                        // containing directory is gone; stop as no-op
)

func (c FailureClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unclassified"
	}
}

var (
	// ErrTransient marks an error as worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrDirectoryNotFound marks a failure caused by a missing containing
	// directory. pkg/filesystem attaches it to not-exist errors.
	ErrDirectoryNotFound = errors.New("directory not found")
)

type temporary interface {
	Temporary() bool
}

// Classify decides how the retry loop treats err.
func Classify(err error) FailureClass {
	if err == nil {
		return Unclassified
	}
	if errors.Is(err, ErrDirectoryNotFound) {
		return Permanent
	}
	if errors.Is(err, ErrTransient) || isLockError(err) {
		return Transient
	}
	// Access and path-shape failures do not clear by waiting.
	if isFatal(err) {
		return Unclassified
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr) {
		return Transient
	}

	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return Transient
	}
	return Unclassified
}

// IsLockError reports whether err comes from another process holding the
// file (sharing or lock violation, busy resource).
func IsLockError(err error) bool {
	return isLockError(err)
}

func isLockError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	for _, e := range lockErrnos {
		if errno == e {
			return true
		}
	}
	return false
}

func isFatal(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, e := range fatalErrnos {
			if errno == e {
				return true
			}
		}
		return false
	}
	return errors.Is(err, fs.ErrPermission)
}

// AggregateError collects the transient failures of an exhausted policy.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "retry: no attempts made"
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = fmt.Sprintf("(%v)", err)
	}
	return fmt.Sprintf("retry: %d attempts failed: %s", len(e.Errors), strings.Join(msgs, " "))
}

// Unwrap exposes every attempt's error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Last returns the final attempt's error, or nil.
func (e *AggregateError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
