//go:build !unix

package daemon

import (
	"errors"
	"os"
	"os/exec"
)

var errNoSignals = errors.New("process signals are not supported on this platform")

func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func terminate(pid int) error {
	return errNoSignals
}

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func detach(cmd *exec.Cmd) {}

var shutdownSignals = []os.Signal{os.Interrupt}
