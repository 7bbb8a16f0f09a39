package setup

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/micha/capture-hotkey/config"
)

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a", "b")
	b := filepath.Join(root, "c")

	if err := EnsureDirs(a, "", b); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	for _, dir := range []string{a, b} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s was not created", dir)
		}
	}
	// Existing directories are fine
	if err := EnsureDirs(a); err != nil {
		t.Errorf("EnsureDirs on existing dir failed: %v", err)
	}
}

func TestRuntimeDirs(t *testing.T) {
	d := config.DaemonConfig{
		PIDFile:    "/tmp/capture_hotkey.pid",
		ConfigFile: "/tmp/capture_hotkey.conf",
		LogFile:    "/var/log/capture_hotkey.log",
	}
	got := RuntimeDirs(d)
	if !slices.Equal(got, []string{"/tmp", "/var/log"}) {
		t.Errorf("RuntimeDirs = %v", got)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	script := filepath.Join(root, "capture.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Device = filepath.Join(root, "event99")
	cfg.Capture.Interpreter = "/bin/sh"
	cfg.Capture.Script = script
	cfg.Capture.ScreenshotDir = filepath.Join(root, "screenshots")
	cfg.Capture.RecordingDir = filepath.Join(root, "recordings")
	cfg.Daemon.PIDFile = filepath.Join(root, "run", "hotkey.pid")
	cfg.Daemon.ConfigFile = filepath.Join(root, "run", "hotkey.conf")
	cfg.Daemon.LogFile = filepath.Join(root, "run", "hotkey.log")
	if err := EnsureDirs(filepath.Join(root, "run")); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func findCheck(r Report, name string) *Check {
	for i := range r {
		if r[i].Name == name {
			return &r[i]
		}
	}
	return nil
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	r := Run(cfg)

	tests := []struct {
		name string
		want Status
	}{
		{"input device", StatusFail},
		{"interpreter", StatusOK},
		{"capture tool", StatusOK},
		{"screenshot dir", StatusOK},
		{"recording dir", StatusOK},
		{"runtime dir", StatusOK},
	}
	for _, tt := range tests {
		c := findCheck(r, tt.name)
		if c == nil {
			t.Errorf("missing check %q", tt.name)
			continue
		}
		if c.Status != tt.want {
			t.Errorf("%s: status = %v, want %v (%s)", tt.name, c.Status, tt.want, c.Detail)
		}
	}

	if r.OK() {
		t.Error("report with a missing device should not be OK")
	}
	if _, err := os.Stat(cfg.Capture.ScreenshotDir); err != nil {
		t.Errorf("screenshot dir not created: %v", err)
	}
}

func TestCheckToolWithoutInterpreter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Interpreter = ""

	checks := checkTool(cfg.Capture)
	if len(checks) != 1 {
		t.Fatalf("got %d checks, want only the tool check", len(checks))
	}
	if checks[0].Status != StatusFail || checks[0].Fix == "" {
		t.Errorf("non-executable tool should fail with a fix, got %+v", checks[0])
	}

	if err := os.Chmod(cfg.Capture.Script, 0o755); err != nil {
		t.Fatal(err)
	}
	if c := checkTool(cfg.Capture)[0]; c.Status != StatusOK {
		t.Errorf("executable tool should pass, got %+v", c)
	}
}

func TestCheckToolMissingInterpreter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Interpreter = "definitely-not-a-real-interpreter"

	c := checkTool(cfg.Capture)[0]
	if c.Status != StatusFail || c.Fix == "" {
		t.Errorf("missing interpreter should fail with a fix, got %+v", c)
	}
}
