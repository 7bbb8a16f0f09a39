package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/micha/capture-hotkey/config"
)

// testConfig points every daemon path into a temp dir and installs a fake
// capture tool that appends its arguments to calls.log.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	script := filepath.Join(dir, "capture.sh")
	tool := "#!/bin/sh\necho \"$*\" >> calls.log\necho saved\n"
	if err := os.WriteFile(script, []byte(tool), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Device = filepath.Join(dir, "event3")
	cfg.Capture.Interpreter = "/bin/sh"
	cfg.Capture.Script = script
	cfg.Capture.ScreenshotDir = filepath.Join(dir, "screenshots")
	cfg.Capture.RecordingDir = filepath.Join(dir, "recordings")
	cfg.Daemon.PIDFile = filepath.Join(dir, "hotkey.pid")
	cfg.Daemon.ConfigFile = filepath.Join(dir, "hotkey.conf")
	cfg.Daemon.LogFile = filepath.Join(dir, "hotkey.log")
	cfg.Daemon.StopInterval = 50 * time.Millisecond
	cfg.Daemon.ReadRetryDelay = 50 * time.Millisecond
	cfg.Daemon.StartConfirmTimeout = 2 * time.Second
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileContains(path, substr string) bool {
	data, err := os.ReadFile(path)
	return err == nil && strings.Contains(string(data), substr)
}

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

// testCalls is the file the fake capture tool appends to.
func testCalls(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Capture.Script), "calls.log")
}
