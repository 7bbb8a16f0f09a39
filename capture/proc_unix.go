//go:build unix

package capture

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the tool in its own process group so a timeout kills
// the helpers it spawned (ffmpeg, encoders) along with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID means process group
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
