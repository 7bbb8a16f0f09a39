//go:build unix

package daemon

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Alive reports whether a process with this PID exists. A process owned by
// another user (EPERM) counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

func kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// detach starts the worker in its own session so it survives the terminal
// that launched it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals are the signals that stop a worker.
var shutdownSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}
