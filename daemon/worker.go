package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/micha/capture-hotkey/capture"
	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/hotkey"
	"github.com/micha/capture-hotkey/logging"
	"github.com/micha/capture-hotkey/setup"
)

// EventSource is an open input device.
type EventSource interface {
	Next() (hotkey.InputEvent, error)
	Interrupt()
	Close() error
}

// NotifyContext returns a context cancelled by SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

// Worker is the long-running process that watches the device and triggers
// captures. Start spawns it detached; run executes it in the foreground.
type Worker struct {
	cfg     *config.Config
	store   *Store
	invoker *capture.Invoker
	logger  *logging.Logger
	pid     int
	state   atomic.Int32

	// keyEvents counts key events read from the device.
	keyEvents atomic.Uint64

	open func(path string) (EventSource, error)
	now  func() time.Time
}

// NewWorker creates a worker for the given capture settings.
func NewWorker(cfg *config.Config, settings capture.Settings, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Worker{
		cfg:     cfg,
		store:   NewStore(cfg.Daemon),
		invoker: capture.NewInvoker(settings, cfg.Capture, logger),
		logger:  logger,
		pid:     os.Getpid(),
		open: func(path string) (EventSource, error) {
			return hotkey.Open(path)
		},
		now: time.Now,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run opens the device, claims the daemon record, watches the device until
// ctx is cancelled, then removes the record. The record is only written once
// the device is open, so a visible record means the worker got past startup.
// Cleanup runs on every exit path once the record was claimed. Startup
// failures are returned; read errors are retried.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateStarting)
	defer w.setState(StateStopped)

	settings := w.invoker.Settings()
	if err := setup.EnsureDirs(setup.RuntimeDirs(w.cfg.Daemon)...); err != nil {
		return err
	}

	dev, err := w.open(w.cfg.Device)
	if err != nil {
		switch {
		case errors.Is(err, hotkey.ErrDeviceNotFound):
			w.logger.Error("Gamepad not found: " + w.cfg.Device)
		case errors.Is(err, hotkey.ErrPermissionDenied):
			w.logger.Error("Permission denied: " + w.cfg.Device)
		default:
			w.logger.Error("Error: " + err.Error())
		}
		return err
	}
	defer dev.Close()

	if err := w.store.Claim(Record{PID: w.pid, Settings: settings}); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			w.logger.Error("Another daemon holds the PID file, exiting", "error", err)
		}
		return err
	}
	defer w.cleanup()

	w.logger.Info(fmt.Sprintf("Hotkey daemon started (PID: %d)", w.pid))
	w.logger.Info("Mode: " + settings.String())
	w.logger.Info("Listening on: " + w.cfg.Device)
	w.logger.Info(fmt.Sprintf("Hotkey: %s (code %d)", hotkey.HotkeyName, hotkey.HotkeyCode))

	if err := setup.EnsureDirs(w.cfg.Capture.ScreenshotDir, w.cfg.Capture.RecordingDir); err != nil {
		w.logger.Warn("Cannot create output directories", "error", err)
	}

	stop := context.AfterFunc(ctx, dev.Interrupt)
	defer stop()

	w.startOutputWatcher(ctx)

	w.setState(StateRunning)
	w.loop(ctx, dev)
	w.setState(StateStopping)
	return nil
}

func (w *Worker) loop(ctx context.Context, dev EventSource) {
	tracker := hotkey.NewTracker(hotkey.HotkeyCode)
	// An in-flight capture finishes on shutdown; only its timeout bounds it
	captureCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			w.logger.Info("Received shutdown signal")
			return
		}

		ev, err := dev.Next()
		if ctx.Err() != nil {
			w.logger.Info("Received shutdown signal")
			return
		}

		switch {
		case err == nil:
		case errors.Is(err, hotkey.ErrNoEvent):
			continue
		case errors.Is(err, hotkey.ErrInterrupted), errors.Is(err, os.ErrClosed):
			return
		default:
			w.logger.Warn("Read error: " + err.Error())
			sleepCtx(ctx, w.cfg.Daemon.ReadRetryDelay)
			continue
		}

		if !ev.IsKey() {
			continue
		}
		w.keyEvents.Add(1)
		if tracker.Observe(ev) {
			w.logger.Debug("Hotkey pressed", "held", tracker.Held())
			w.invoker.MaybeCapture(captureCtx, w.now())
		}
	}
}

func (w *Worker) startOutputWatcher(ctx context.Context) {
	ow, err := capture.NewOutputWatcher(w.logger, w.cfg.Capture.ScreenshotDir, w.cfg.Capture.RecordingDir)
	if err != nil {
		w.logger.Debug("Output watcher disabled", "error", err)
		return
	}
	context.AfterFunc(ctx, func() { ow.Close() })
	go ow.Run(ctx)
}

func (w *Worker) cleanup() {
	if err := w.store.RemoveIfOwned(w.pid); err != nil {
		w.logger.Warn("Cannot remove daemon record", "error", err)
	}
	w.logger.Info("Hotkey daemon stopped")
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
