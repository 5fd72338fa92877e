//go:build unix

package executor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the command in its own process group so a timeout
// also reaches anything a shell command spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerminate(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGTERM)
}

func signalKill(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGKILL)
}
