// Package setup prepares and checks the environment the daemon depends on:
// the gamepad device, the capture tool and its interpreter, and the output
// and runtime directories.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/hotkey"
)

// Status is the outcome of one check.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Check is one line of the environment report.
type Check struct {
	Name   string
	Status Status
	Detail string
	// Fix is a suggested remedy, empty when there is nothing to do.
	Fix string
}

// Report is the result of Run.
type Report []Check

// OK reports whether no check failed. Warnings do not count.
func (r Report) OK() bool {
	for _, c := range r {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// EnsureDirs creates every directory in dirs. Empty entries are skipped.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// RuntimeDirs returns the parent directories of the daemon's PID, config
// and log files.
func RuntimeDirs(d config.DaemonConfig) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, p := range []string{d.PIDFile, d.ConfigFile, d.LogFile} {
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Run checks everything a worker needs. It creates missing output
// directories; it does not install anything.
func Run(cfg *config.Config) Report {
	var r Report
	r = append(r, checkDevice(cfg.Device))
	r = append(r, checkTool(cfg.Capture)...)
	r = append(r, checkDir("screenshot dir", cfg.Capture.ScreenshotDir))
	r = append(r, checkDir("recording dir", cfg.Capture.RecordingDir))
	for _, dir := range RuntimeDirs(cfg.Daemon) {
		r = append(r, checkWritable("runtime dir", dir))
	}
	return r
}

func checkDevice(path string) Check {
	c := Check{Name: "input device", Detail: path}

	dev, err := hotkey.Open(path)
	switch {
	case err == nil:
		dev.Close()
		c.Status = StatusOK
	case errors.Is(err, hotkey.ErrDeviceNotFound):
		c.Status = StatusFail
		c.Fix = "check `ls /dev/input/` and set device in the config file"
	case errors.Is(err, hotkey.ErrPermissionDenied):
		c.Status = StatusFail
		c.Fix = "run as root or add the user to the input group"
	default:
		c.Status = StatusFail
		c.Detail = fmt.Sprintf("%s: %v", path, err)
	}
	return c
}

func checkTool(cc config.CaptureConfig) []Check {
	var checks []Check

	if cc.Interpreter != "" {
		c := Check{Name: "interpreter", Detail: cc.Interpreter}
		if resolved, err := exec.LookPath(cc.Interpreter); err != nil {
			c.Status = StatusFail
			c.Fix = installHint(cc.Interpreter)
		} else {
			c.Status = StatusOK
			c.Detail = resolved
		}
		checks = append(checks, c)
	}

	c := Check{Name: "capture tool", Detail: cc.Script}
	info, err := os.Stat(cc.Script)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.Status = StatusFail
		c.Fix = "install the capture tool or set capture.script"
	case err != nil:
		c.Status = StatusFail
		c.Detail = fmt.Sprintf("%s: %v", cc.Script, err)
	case info.IsDir():
		c.Status = StatusFail
		c.Detail = cc.Script + " is a directory"
	case cc.Interpreter == "" && info.Mode().Perm()&0o111 == 0:
		c.Status = StatusFail
		c.Fix = "chmod +x the tool or set capture.interpreter"
	default:
		c.Status = StatusOK
	}
	return append(checks, c)
}

func checkDir(name, dir string) Check {
	c := Check{Name: name, Detail: dir}
	if dir == "" {
		c.Status = StatusWarn
		c.Detail = "not configured"
		return c
	}
	if err := EnsureDirs(dir); err != nil {
		c.Status = StatusFail
		c.Detail = err.Error()
		return c
	}
	c.Status = StatusOK
	return c
}

func checkWritable(name, dir string) Check {
	c := Check{Name: name, Detail: dir}
	f, err := os.CreateTemp(dir, ".capture-hotkey-check-*")
	if err != nil {
		c.Status = StatusFail
		c.Detail = fmt.Sprintf("%s: %v", dir, err)
		return c
	}
	f.Close()
	os.Remove(f.Name())
	c.Status = StatusOK
	return c
}
