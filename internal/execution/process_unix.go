//go:build !windows

package execution

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the command in its own process group so that
// cancelling the context stops every process the shell spawned.
func configureProcess(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return nil
}
