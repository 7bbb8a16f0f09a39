package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/micha/capture-hotkey/capture"
	"github.com/micha/capture-hotkey/config"
)

// ErrCorruptRecord is returned when the PID file does not hold a number.
var ErrCorruptRecord = errors.New("corrupt daemon record")

// Record is the on-disk description of a running worker.
type Record struct {
	PID      int
	Settings capture.Settings
}

// Store persists the Record as a PID file plus a small JSON settings file.
type Store struct {
	pidPath  string
	confPath string
}

// NewStore creates a store for the paths in d.
func NewStore(d config.DaemonConfig) *Store {
	return &Store{pidPath: d.PIDFile, confPath: d.ConfigFile}
}

// PIDPath returns the PID file path.
func (s *Store) PIDPath() string {
	return s.pidPath
}

// Write persists r. The settings file is written first and the PID file is
// renamed into place last, so a visible PID file means a complete record.
func (s *Store) Write(r Record) error {
	data, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := writeFileAtomic(s.confPath, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := writeFileAtomic(s.pidPath, []byte(strconv.Itoa(r.PID))); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Claim writes r for a worker that is starting up. The PID file is linked
// into place, which fails if one already exists, so two workers racing for
// the same paths cannot both succeed. A record naming a live process other
// than r.PID yields ErrAlreadyRunning; a stale or corrupt one is replaced.
// The settings file is written after the PID file is claimed.
func (s *Store) Claim(r Record) error {
	for attempt := 0; ; attempt++ {
		err := linkFile(s.pidPath, []byte(strconv.Itoa(r.PID)))
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt > 0 {
			return fmt.Errorf("failed to write PID file: %w", err)
		}

		pid, err := s.ReadPID()
		switch {
		case err == nil && pid == r.PID:
			return s.Write(r)
		case err == nil && Alive(pid):
			return fmt.Errorf("%w (PID: %d)", ErrAlreadyRunning, pid)
		case err != nil && !errors.Is(err, ErrCorruptRecord) && !errors.Is(err, ErrNotRunning):
			return err
		}
		if err := os.Remove(s.pidPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	data, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := writeFileAtomic(s.confPath, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ReadPID returns the recorded PID. A missing PID file yields ErrNotRunning.
func (s *Store) ReadPID() (int, error) {
	data, err := os.ReadFile(s.pidPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: PID file contains %q", ErrCorruptRecord, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Read returns the full record. A missing or unreadable settings file falls
// back to screenshot mode; only the PID file decides whether a record exists.
func (s *Store) Read() (Record, error) {
	pid, err := s.ReadPID()
	if err != nil {
		return Record{}, err
	}

	r := Record{PID: pid, Settings: capture.Settings{Mode: capture.ModeScreenshot}}
	data, err := os.ReadFile(s.confPath)
	if err != nil {
		return r, nil
	}
	var settings capture.Settings
	if json.Unmarshal(data, &settings) == nil {
		r.Settings = settings
	}
	return r, nil
}

// Exists reports whether any part of the record is on disk.
func (s *Store) Exists() bool {
	for _, p := range []string{s.pidPath, s.confPath} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Remove deletes both files. Missing files are not errors.
func (s *Store) Remove() error {
	var errs []error
	for _, p := range []string{s.pidPath, s.confPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveIfOwned deletes the record only if it still names pid, so a worker
// shutting down late cannot delete a newer worker's record.
func (s *Store) RemoveIfOwned(pid int) error {
	current, err := s.ReadPID()
	if err == nil && current != pid {
		return nil
	}
	return s.Remove()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// linkFile creates path with data only if path does not exist yet.
func linkFile(path string, data []byte) error {
	tmp, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

// writeTemp writes data to a hidden temp file next to path.
func writeTemp(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
