package capture

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/logging"
)

// waitDelay bounds how long Run waits for output pipes after the tool exits
// or is killed, in case a grandchild still holds them open.
const waitDelay = 2 * time.Second

// Outcome classifies a dispatched capture.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeSpawnError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeSpawnError:
		return "spawn_error"
	default:
		return "unknown"
	}
}

// Result describes one run of the capture tool.
type Result struct {
	ID       string
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	Elapsed  time.Duration
}

// Invoker dispatches captures. It owns the cooldown clock and is driven from
// the single worker loop, so it does no locking.
type Invoker struct {
	settings Settings
	cfg      config.CaptureConfig
	logger   *logging.Logger

	last       time.Time
	lastResult *Result
}

// NewInvoker creates an invoker for the given mode.
func NewInvoker(settings Settings, cfg config.CaptureConfig, logger *logging.Logger) *Invoker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Invoker{
		settings: settings.Normalize(cfg.DefaultRecordDuration),
		cfg:      cfg,
		logger:   logger,
	}
}

// Settings returns the mode the invoker was built with.
func (inv *Invoker) Settings() Settings {
	return inv.settings
}

// Cooldown is the minimum time between two dispatched captures.
func (inv *Invoker) Cooldown() time.Duration {
	if inv.settings.Mode == ModeRecord {
		return time.Duration(inv.settings.Duration)*time.Second + inv.cfg.RecordCooldownMargin
	}
	return inv.cfg.ScreenshotCooldown
}

// Timeout is the upper bound for one run of the capture tool.
func (inv *Invoker) Timeout() time.Duration {
	if inv.settings.Mode == ModeRecord {
		return inv.cfg.RecordTimeout(inv.settings.Duration)
	}
	return inv.cfg.ScreenshotTimeout
}

// Last returns the time of the last dispatched capture (zero if none).
func (inv *Invoker) Last() time.Time {
	return inv.last
}

// LastResult returns the result of the last dispatched capture, or nil.
func (inv *Invoker) LastResult() *Result {
	return inv.lastResult
}

// MaybeCapture runs the capture tool unless the previous dispatch is still
// within the cooldown window. It reports whether a capture was dispatched.
// Failures of the tool are logged and never returned: a broken capture
// backend must not stop hotkey monitoring.
func (inv *Invoker) MaybeCapture(ctx context.Context, now time.Time) bool {
	if !inv.last.IsZero() && now.Sub(inv.last) < inv.Cooldown() {
		inv.logger.Info("Capture cooldown active, skipping",
			"remaining", inv.Cooldown()-now.Sub(inv.last))
		return false
	}

	// Taken before dispatch so a slow or failing capture is not retried at once.
	inv.last = now

	if inv.settings.Mode == ModeRecord {
		inv.logger.Info("Hotkey triggered! Recording video...",
			"duration", inv.settings.Duration, "fps", inv.cfg.RecordFPS)
	} else {
		inv.logger.Info("Hotkey triggered! Capturing screenshot...")
	}

	res := inv.run(ctx)
	inv.lastResult = &res
	return true
}

// Command builds the capture tool invocation. The working directory is the
// tool's own directory.
func (inv *Invoker) Command(ctx context.Context) *exec.Cmd {
	args := inv.settings.Args(inv.cfg.RecordFPS)

	var cmd *exec.Cmd
	if inv.cfg.Interpreter != "" {
		cmd = exec.CommandContext(ctx, inv.cfg.Interpreter, append([]string{inv.cfg.Script}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, inv.cfg.Script, args...)
	}
	cmd.Dir = filepath.Dir(inv.cfg.Script)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	return cmd
}

func (inv *Invoker) run(parent context.Context) Result {
	res := Result{ID: uuid.NewString(), ExitCode: -1}
	log := inv.logger.With("capture_id", res.ID)

	ctx, cancel := context.WithTimeout(parent, inv.Timeout())
	defer cancel()

	cmd := inv.Command(ctx)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Elapsed = time.Since(start)
	res.Stdout = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())
	res.Err = err
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Outcome = OutcomeComplete
		log.Info("Capture complete: "+res.Stdout, "elapsed", res.Elapsed.Round(time.Millisecond))
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimedOut
		log.Error("Capture timed out", "timeout", inv.Timeout())
	case errors.As(err, &exitErr):
		res.Outcome = OutcomeFailed
		log.Error("Capture failed: "+res.Stderr, "exit_code", res.ExitCode)
	default:
		res.Outcome = OutcomeSpawnError
		log.Error("Capture error", "error", err)
	}

	return res
}
