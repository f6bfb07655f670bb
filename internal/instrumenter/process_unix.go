//go:build unix

package instrumenter

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the rewriter in its own process group so a
// timeout kills everything it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
