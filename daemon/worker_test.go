//go:build unix

package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micha/capture-hotkey/capture"
	"github.com/micha/capture-hotkey/hotkey"
	"github.com/micha/capture-hotkey/logging"
)

var errFlakyRead = errors.New("read /dev/input/event3: input/output error")

// scriptedSource replays steps, then blocks until interrupted. A step is
// either an event or a read error. When repeat is set the last step is
// returned forever.
type scriptedSource struct {
	mu     sync.Mutex
	steps  []any
	repeat bool

	stop chan struct{}
	once sync.Once
}

func newScriptedSource(steps ...any) *scriptedSource {
	return &scriptedSource{steps: steps, stop: make(chan struct{})}
}

func (s *scriptedSource) Next() (hotkey.InputEvent, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		<-s.stop
		return hotkey.InputEvent{}, hotkey.ErrInterrupted
	}
	step := s.steps[0]
	if !s.repeat || len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	switch v := step.(type) {
	case error:
		return hotkey.InputEvent{}, v
	case hotkey.InputEvent:
		return v, nil
	default:
		panic("unknown step")
	}
}

func (s *scriptedSource) Interrupt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *scriptedSource) Close() error {
	s.Interrupt()
	return nil
}

func runScripted(t *testing.T, w *Worker, src *scriptedSource) (context.CancelFunc, chan error) {
	t.Helper()
	w.open = func(string) (EventSource, error) { return src, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestWorkerRetriesAfterReadError(t *testing.T) {
	cfg := testConfig(t)
	logger, err := logging.New(logging.Options{Path: cfg.Daemon.LogFile})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	press := hotkey.InputEvent{Type: hotkey.EvKey, Code: hotkey.HotkeyCode, Value: hotkey.KeyPressed}
	src := newScriptedSource(errFlakyRead, press)
	w := NewWorker(cfg, capture.Settings{Mode: capture.ModeScreenshot}, logger)
	cancel, done := runScripted(t, w, src)

	calls := testCalls(cfg)
	waitFor(t, 5*time.Second, "capture after the failed read", func() bool { return countLines(calls) == 1 })
	if !fileContains(cfg.Daemon.LogFile, "Read error: "+errFlakyRead.Error()) {
		t.Error("log missing read error")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStopsDuringReadRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.ReadRetryDelay = time.Minute
	logger, err := logging.New(logging.Options{Path: cfg.Daemon.LogFile})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	src := newScriptedSource(errFlakyRead)
	src.repeat = true
	w := NewWorker(cfg, capture.Settings{Mode: capture.ModeScreenshot}, logger)
	cancel, done := runScripted(t, w, src)

	waitFor(t, 5*time.Second, "read error to be logged", func() bool {
		return fileContains(cfg.Daemon.LogFile, "Read error: ")
	})

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker stayed in the retry pause after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
	if !fileContains(cfg.Daemon.LogFile, "Received shutdown signal") {
		t.Error("log missing shutdown line")
	}
	if NewStore(cfg.Daemon).Exists() {
		t.Error("record left behind after shutdown")
	}
}
