// Package daemon manages the hotkey worker's lifecycle: the persisted
// record, detached start, stop with escalation, status, and the worker loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/micha/capture-hotkey/capture"
	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/monitor"
	"github.com/micha/capture-hotkey/setup"
)

var (
	// ErrAlreadyRunning is returned by Start when a live worker exists.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning means no daemon record exists.
	ErrNotRunning = errors.New("daemon not running")
)

// WorkerCommand is the hidden subcommand the detached worker runs.
const WorkerCommand = "worker"

// startSettle is how long a worker must stay alive after writing its record
// before start reports success.
const startSettle = 500 * time.Millisecond

// Spawner launches a detached worker and returns its PID.
type Spawner interface {
	Spawn(args []string, outputPath string) (int, error)
}

// execSpawner re-executes the current binary.
type execSpawner struct {
	executable string
}

// Spawn starts the worker in its own session. Its stdout and stderr go to
// outputPath rather than the log file: the log is rotated by renaming, and a
// redirected descriptor would keep writing into the rotated backup.
func (s execSpawner) Spawn(args []string, outputPath string) (int, error) {
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open worker output file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(s.executable, args...)
	cmd.Dir = "/"
	detach(cmd)

	cmd.Stdin = nil
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start worker: %w", err)
	}

	// Reap the worker if it exits while we are still around, so a failed
	// startup does not linger as a zombie that still answers kill(pid, 0).
	// Once this process exits the worker is reparented.
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

// Manager implements the start/stop/status commands.
type Manager struct {
	cfg        *config.Config
	configFile string
	store      *Store
	spawner    Spawner
	settle     time.Duration
}

// NewManager creates a manager that spawns workers from the running binary.
// configFile is the config file the caller loaded, if any; it is handed to
// the worker so both resolve the same settings.
func NewManager(cfg *config.Config, configFile string) (*Manager, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	m := newManager(cfg, execSpawner{executable: exe})
	if configFile != "" {
		// The worker runs from /, so a relative path would not resolve
		if m.configFile, err = filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}
	return m, nil
}

func newManager(cfg *config.Config, spawner Spawner) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   NewStore(cfg.Daemon),
		spawner: spawner,
		settle:  startSettle,
	}
}

// Store returns the record store the manager uses.
func (m *Manager) Store() *Store {
	return m.store
}

// StartResult describes a start attempt.
type StartResult struct {
	PID      int
	Settings capture.Settings
	// Confirmed is set once the worker wrote its record within the
	// confirmation window.
	Confirmed bool
	// RemovedStale is set when a dead worker's record was cleared first.
	RemovedStale bool
}

// Start launches a detached worker. If a live worker exists it returns
// ErrAlreadyRunning along with that worker's PID.
func (m *Manager) Start(ctx context.Context, settings capture.Settings) (StartResult, error) {
	settings = settings.Normalize(m.cfg.Capture.DefaultRecordDuration)
	res := StartResult{Settings: settings}

	pid, err := m.store.ReadPID()
	switch {
	case err == nil && Alive(pid):
		res.PID = pid
		return res, ErrAlreadyRunning
	case err == nil, errors.Is(err, ErrCorruptRecord):
		if err := m.store.Remove(); err != nil {
			return res, fmt.Errorf("failed to remove stale record: %w", err)
		}
		res.RemovedStale = true
	case !errors.Is(err, ErrNotRunning):
		return res, err
	}

	if err := setup.EnsureDirs(setup.RuntimeDirs(m.cfg.Daemon)...); err != nil {
		return res, err
	}

	// Watch before spawning so the worker's write cannot be missed
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return res, fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(m.store.PIDPath())); err != nil {
		return res, fmt.Errorf("failed to watch %s: %w", filepath.Dir(m.store.PIDPath()), err)
	}

	res.PID, err = m.spawner.Spawn(m.WorkerArgs(settings), m.cfg.Daemon.OutputFile())
	if err != nil {
		return res, err
	}

	res.Confirmed = m.awaitRecord(ctx, watcher, res.PID) && m.settled(ctx, res.PID)
	return res, nil
}

// WorkerArgs returns the command line a detached worker is started with.
func (m *Manager) WorkerArgs(s capture.Settings) []string {
	args := []string{WorkerCommand}
	if m.configFile != "" {
		args = append(args, "--config="+m.configFile)
	}
	args = append(args, string(s.Mode))
	if s.Mode == capture.ModeRecord {
		args = append(args, strconv.Itoa(s.Duration))
	}
	return args
}

// awaitRecord waits until the PID file names pid. It gives up early when
// the worker exits first.
func (m *Manager) awaitRecord(ctx context.Context, watcher *fsnotify.Watcher, pid int) bool {
	written := func() bool {
		got, err := m.store.ReadPID()
		return err == nil && got == pid
	}
	if written() {
		return true
	}

	timer := time.NewTimer(m.cfg.Daemon.StartConfirmTimeout)
	defer timer.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return written()
		case <-poll.C:
			if !Alive(pid) {
				return written()
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return written()
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.store.PIDPath()) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				if written() {
					return true
				}
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return written()
			}
		}
	}
}

// settled waits out the settle period and reports whether the worker is
// still alive and still named by the record.
func (m *Manager) settled(ctx context.Context, pid int) bool {
	t := time.NewTimer(m.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	}
	got, err := m.store.ReadPID()
	return err == nil && got == pid && Alive(pid)
}

// StopOutcome classifies a stop request.
type StopOutcome int

const (
	StopNotRunning StopOutcome = iota
	StopStale
	StopGraceful
	StopKilled
)

func (o StopOutcome) String() string {
	switch o {
	case StopNotRunning:
		return "not running"
	case StopStale:
		return "stale"
	case StopGraceful:
		return "stopped"
	case StopKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// StopResult describes a stop request.
type StopResult struct {
	PID     int
	Outcome StopOutcome
}

// Stop asks the worker to exit with SIGTERM and escalates to SIGKILL when it
// is still alive after the configured wait.
func (m *Manager) Stop(ctx context.Context) (StopResult, error) {
	pid, err := m.store.ReadPID()
	switch {
	case errors.Is(err, ErrNotRunning):
		return StopResult{Outcome: StopNotRunning}, nil
	case errors.Is(err, ErrCorruptRecord):
		return StopResult{Outcome: StopStale}, m.store.Remove()
	case err != nil:
		return StopResult{}, err
	}

	res := StopResult{PID: pid}
	if !Alive(pid) {
		res.Outcome = StopStale
		return res, m.store.Remove()
	}

	if err := terminate(pid); err != nil && Alive(pid) {
		return res, fmt.Errorf("failed to signal PID %d: %w", pid, err)
	}

	ticker := time.NewTicker(m.cfg.Daemon.StopInterval)
	defer ticker.Stop()
	for range m.cfg.Daemon.StopRetries {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
		if !Alive(pid) {
			res.Outcome = StopGraceful
			// The worker removes its own record; this covers a worker that died
			// before its cleanup ran.
			return res, m.store.RemoveIfOwned(pid)
		}
	}

	if err := kill(pid); err != nil && Alive(pid) {
		return res, fmt.Errorf("failed to kill PID %d: %w", pid, err)
	}
	res.Outcome = StopKilled
	return res, m.store.RemoveIfOwned(pid)
}

// StatusReport is what the status command prints.
type StatusReport struct {
	Running  bool
	PID      int
	Settings capture.Settings
	LogPath  string
	Recent   []string
	// Stale is set when a record exists but its process is gone.
	Stale bool
}

// Status reports on the worker without changing anything on disk.
func (m *Manager) Status() (StatusReport, error) {
	rep := StatusReport{LogPath: m.cfg.Daemon.LogFile}

	r, err := m.store.Read()
	switch {
	case err == nil:
		rep.PID = r.PID
		rep.Settings = r.Settings.Normalize(m.cfg.Capture.DefaultRecordDuration)
		rep.Running = Alive(r.PID)
		rep.Stale = !rep.Running
	case errors.Is(err, ErrCorruptRecord):
		rep.Stale = true
	case !errors.Is(err, ErrNotRunning):
		return rep, err
	}

	if !rep.Running {
		return rep, nil
	}

	recent, err := monitor.LastLines(m.cfg.Daemon.LogFile, m.cfg.Daemon.StatusLogLines)
	if err != nil {
		return rep, err
	}
	rep.Recent = recent
	return rep, nil
}
