//go:build windows

package retry

import "syscall"

const (
	errorSharingViolation syscall.Errno = 32
	errorLockViolation    syscall.Errno = 33
)

var lockErrnos = []syscall.Errno{
	errorSharingViolation,
	errorLockViolation,
}

// ERROR_ACCESS_DENIED is also what a file pending deletion or held by a
// scanner reports, so it stays transient.
var fatalErrnos []syscall.Errno
