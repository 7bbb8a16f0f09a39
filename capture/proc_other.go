//go:build !unix

package capture

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
