//go:build unix

package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/micha/capture-hotkey/capture"
)

// deadPID returns the PID of a process that has already exited and been
// reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	return cmd.Process.Pid
}

// startChild starts a process and reaps it in the background so it does not
// linger as a zombie once signalled.
func startChild(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		cmd.Process.Kill()
		<-done
	})
	return cmd
}

type fakeSpawner struct {
	args  []string
	pid   int
	write func()
}

func (f *fakeSpawner) Spawn(args []string, outputPath string) (int, error) {
	f.args = args
	if f.write != nil {
		go f.write()
	}
	return f.pid, nil
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("own process should be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive PIDs are never alive")
	}
	if Alive(deadPID(t)) {
		t.Error("reaped process should not be alive")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	cfg := testConfig(t)
	spawner := &fakeSpawner{}
	m := newManager(cfg, spawner)

	if err := m.Store().Write(Record{PID: os.Getpid()}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Start(context.Background(), capture.Settings{Mode: capture.ModeScreenshot})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start error = %v, want ErrAlreadyRunning", err)
	}
	if res.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", res.PID, os.Getpid())
	}
	if spawner.args != nil {
		t.Error("Start spawned a second worker")
	}
}

func TestStartReplacesStaleRecord(t *testing.T) {
	cfg := testConfig(t)
	spawner := &fakeSpawner{pid: os.Getpid()}
	m := newManager(cfg, spawner)
	m.settle = 100 * time.Millisecond
	spawner.write = func() {
		time.Sleep(50 * time.Millisecond)
		m.Store().Write(Record{PID: spawner.pid, Settings: capture.Settings{Mode: capture.ModeRecord, Duration: 15}})
	}

	if err := m.Store().Write(Record{PID: deadPID(t)}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Start(context.Background(), capture.Settings{Mode: capture.ModeRecord, Duration: 15})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !res.RemovedStale {
		t.Error("stale record was not reported as removed")
	}
	if !res.Confirmed {
		t.Error("start was not confirmed after the worker wrote its record")
	}
	if want := []string{"worker", "record", "15"}; !slices.Equal(spawner.args, want) {
		t.Errorf("worker args = %v, want %v", spawner.args, want)
	}
}

func TestStartUnconfirmed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.StartConfirmTimeout = 200 * time.Millisecond
	spawner := &fakeSpawner{pid: 999999}
	m := newManager(cfg, spawner)

	start := time.Now()
	res, err := m.Start(context.Background(), capture.Settings{Mode: capture.ModeScreenshot})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Confirmed {
		t.Error("start confirmed without a record")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("confirmation wait ignored the timeout: %v", time.Since(start))
	}
	if want := []string{"worker", "screenshot"}; !slices.Equal(spawner.args, want) {
		t.Errorf("worker args = %v, want %v", spawner.args, want)
	}
}

func TestStartWorkerExitsAfterWritingRecord(t *testing.T) {
	cfg := testConfig(t)
	spawner := &fakeSpawner{pid: os.Getpid()}
	m := newManager(cfg, spawner)
	m.settle = 300 * time.Millisecond
	spawner.write = func() {
		time.Sleep(20 * time.Millisecond)
		m.Store().Write(Record{PID: spawner.pid})
		time.Sleep(40 * time.Millisecond)
		m.Store().RemoveIfOwned(spawner.pid)
	}

	res, err := m.Start(context.Background(), capture.Settings{Mode: capture.ModeScreenshot})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Confirmed {
		t.Error("start confirmed a worker that removed its record during startup")
	}
}

func TestStartWorkerDiesBeforeRecord(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.StartConfirmTimeout = 10 * time.Second
	m := newManager(cfg, &fakeSpawner{pid: deadPID(t)})

	start := time.Now()
	res, err := m.Start(context.Background(), capture.Settings{Mode: capture.ModeScreenshot})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Confirmed {
		t.Error("start confirmed a dead worker")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("start waited %v for a worker that already exited", elapsed)
	}
}

func TestWorkerArgsCarryConfigFile(t *testing.T) {
	m := newManager(testConfig(t), &fakeSpawner{})
	m.configFile = "/etc/capture-hotkey/config.yaml"

	got := m.WorkerArgs(capture.Settings{Mode: capture.ModeScreenshot})
	want := []string{"worker", "--config=/etc/capture-hotkey/config.yaml", "screenshot"}
	if !slices.Equal(got, want) {
		t.Errorf("WorkerArgs() = %v, want %v", got, want)
	}
}

func TestExecSpawnerOutputAndReaping(t *testing.T) {
	cfg := testConfig(t)
	out := cfg.Daemon.OutputFile()

	pid, err := execSpawner{executable: "/bin/sh"}.Spawn([]string{"-c", "echo to-stdout; echo to-stderr >&2"}, out)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	waitFor(t, 5*time.Second, "worker output", func() bool {
		return fileContains(out, "to-stdout") && fileContains(out, "to-stderr")
	})
	waitFor(t, 5*time.Second, "exited worker to be reaped", func() bool { return !Alive(pid) })

	if _, err := os.Stat(cfg.Daemon.LogFile); !errors.Is(err, os.ErrNotExist) {
		t.Error("worker output was written to the log file")
	}
}

func TestStopNotRunning(t *testing.T) {
	m := newManager(testConfig(t), &fakeSpawner{})

	res, err := m.Stop(context.Background())
	if err != nil || res.Outcome != StopNotRunning {
		t.Errorf("Stop() = %+v, %v; want not running", res, err)
	}
}

func TestStopStale(t *testing.T) {
	m := newManager(testConfig(t), &fakeSpawner{})
	if err := m.Store().Write(Record{PID: deadPID(t)}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Stop(context.Background())
	if err != nil || res.Outcome != StopStale {
		t.Fatalf("Stop() = %+v, %v; want stale", res, err)
	}
	if m.Store().Exists() {
		t.Error("stale record was not removed")
	}
}

func TestStopGraceful(t *testing.T) {
	m := newManager(testConfig(t), &fakeSpawner{})
	child := startChild(t, "sleep", "30")
	if err := m.Store().Write(Record{PID: child.Process.Pid}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if res.Outcome != StopGraceful || res.PID != child.Process.Pid {
		t.Errorf("Stop() = %+v, want graceful for PID %d", res, child.Process.Pid)
	}
	if m.Store().Exists() {
		t.Error("record left behind after stop")
	}
}

func TestStopKillsStubbornWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.StopRetries = 3
	m := newManager(cfg, &fakeSpawner{})

	ready := filepath.Join(t.TempDir(), "ready")
	child := startChild(t, "/bin/sh", "-c", `trap "" TERM; echo ok > "$1"; while :; do sleep 0.1; done`, "sh", ready)
	waitFor(t, 5*time.Second, "child to ignore SIGTERM", func() bool {
		_, err := os.Stat(ready)
		return err == nil
	})
	if err := m.Store().Write(Record{PID: child.Process.Pid}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if res.Outcome != StopKilled {
		t.Errorf("Outcome = %v, want killed", res.Outcome)
	}
	if m.Store().Exists() {
		t.Error("record left behind after SIGKILL")
	}
	waitFor(t, 5*time.Second, "child to exit", func() bool { return !Alive(child.Process.Pid) })
}

func TestStatus(t *testing.T) {
	t.Run("no record", func(t *testing.T) {
		m := newManager(testConfig(t), &fakeSpawner{})
		rep, err := m.Status()
		if err != nil {
			t.Fatal(err)
		}
		if rep.Running || rep.Stale {
			t.Errorf("Status() = %+v, want not running", rep)
		}
	})

	t.Run("stale record is left alone", func(t *testing.T) {
		m := newManager(testConfig(t), &fakeSpawner{})
		if err := m.Store().Write(Record{PID: deadPID(t)}); err != nil {
			t.Fatal(err)
		}
		rep, err := m.Status()
		if err != nil {
			t.Fatal(err)
		}
		if rep.Running || !rep.Stale {
			t.Errorf("Status() = %+v, want stale", rep)
		}
		if !m.Store().Exists() {
			t.Error("status removed the record")
		}
	})

	t.Run("running", func(t *testing.T) {
		cfg := testConfig(t)
		m := newManager(cfg, &fakeSpawner{})
		settings := capture.Settings{Mode: capture.ModeRecord, Duration: 15}
		if err := m.Store().Write(Record{PID: os.Getpid(), Settings: settings}); err != nil {
			t.Fatal(err)
		}
		log := "[2024-03-01 12:00:00] a\n[2024-03-01 12:00:01] b\n[2024-03-01 12:00:02] c\n" +
			"[2024-03-01 12:00:03] d\n[2024-03-01 12:00:04] e\n[2024-03-01 12:00:05] f\n"
		if err := os.WriteFile(cfg.Daemon.LogFile, []byte(log), 0o644); err != nil {
			t.Fatal(err)
		}

		rep, err := m.Status()
		if err != nil {
			t.Fatal(err)
		}
		if !rep.Running || rep.PID != os.Getpid() || rep.Settings != settings {
			t.Errorf("Status() = %+v", rep)
		}
		if len(rep.Recent) != 5 || rep.Recent[0] != "[2024-03-01 12:00:01] b" {
			t.Errorf("Recent = %q", rep.Recent)
		}
	})
}

func TestStoreClaim(t *testing.T) {
	settings := capture.Settings{Mode: capture.ModeRecord, Duration: 15}

	t.Run("fresh", func(t *testing.T) {
		s := NewStore(testConfig(t).Daemon)
		if err := s.Claim(Record{PID: 4242, Settings: settings}); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		r, err := s.Read()
		if err != nil || r.PID != 4242 || r.Settings != settings {
			t.Errorf("Read() = %+v, %v", r, err)
		}
	})

	t.Run("stale record is replaced", func(t *testing.T) {
		s := NewStore(testConfig(t).Daemon)
		if err := s.Write(Record{PID: deadPID(t)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Claim(Record{PID: 4242, Settings: settings}); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if pid, _ := s.ReadPID(); pid != 4242 {
			t.Errorf("PID = %d, want 4242", pid)
		}
	})

	t.Run("corrupt record is replaced", func(t *testing.T) {
		cfg := testConfig(t)
		s := NewStore(cfg.Daemon)
		if err := os.WriteFile(cfg.Daemon.PIDFile, []byte("garbage"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := s.Claim(Record{PID: 4242}); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
	})

	t.Run("live record is kept", func(t *testing.T) {
		s := NewStore(testConfig(t).Daemon)
		other := startChild(t, "sleep", "30")
		if err := s.Write(Record{PID: other.Process.Pid}); err != nil {
			t.Fatal(err)
		}
		err := s.Claim(Record{PID: 4242, Settings: settings})
		if !errors.Is(err, ErrAlreadyRunning) {
			t.Fatalf("Claim error = %v, want ErrAlreadyRunning", err)
		}
		if pid, _ := s.ReadPID(); pid != other.Process.Pid {
			t.Errorf("PID = %d, want %d", pid, other.Process.Pid)
		}
	})
}
