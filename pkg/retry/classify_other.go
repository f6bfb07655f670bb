//go:build !unix && !windows

package retry

import "syscall"

var lockErrnos []syscall.Errno

var fatalErrnos []syscall.Errno
