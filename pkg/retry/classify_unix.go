//go:build unix

package retry

import "syscall"

var lockErrnos = []syscall.Errno{
	syscall.EBUSY,
	syscall.ETXTBSY,
	syscall.EAGAIN,
}

var fatalErrnos = []syscall.Errno{
	syscall.EACCES,
	syscall.EPERM,
	syscall.EROFS,
	syscall.ENOTDIR,
}
