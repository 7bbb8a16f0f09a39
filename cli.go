package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/micha/capture-hotkey/capture"
	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/daemon"
	"github.com/micha/capture-hotkey/hotkey"
)

const modeArgs = "[screenshot|ss|s|record|rec|r|video|v] [duration]"

func (a *app) newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start " + modeArgs,
		Short: "Start the daemon in the background",
		Long: `Start the hotkey daemon in the background.

The mode defaults to screenshot. Record mode takes an optional duration in
seconds (default 10).`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			m, err := a.newManager(cfg)
			if err != nil {
				return err
			}

			settings := capture.ParseArgs(args, cfg.Capture.DefaultRecordDuration)
			res, err := m.Start(cmd.Context(), settings)
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				fmt.Fprintln(a.stderr, warnStyle.Render("Daemon already running, stop it first"))
				return errSilent
			}
			if err != nil {
				return err
			}

			if res.RemovedStale {
				fmt.Fprintln(a.stdout, mutedStyle.Render("Removed stale PID file"))
			}
			fmt.Fprintln(a.stdout, "Hotkey daemon starting...")
			if !res.Confirmed {
				fmt.Fprintln(a.stderr, errorStyle.Render(fmt.Sprintf("Daemon (PID: %d) did not come up, see %s and %s", res.PID, cfg.Daemon.LogFile, cfg.Daemon.OutputFile())))
				return errSilent
			}
			fmt.Fprintln(a.stdout, successStyle.Render(fmt.Sprintf("Daemon started (PID: %d)", res.PID)))
			fmt.Fprintf(a.stdout, "Mode: %s\n", res.Settings)
			fmt.Fprintf(a.stdout, "Hotkey: %s\n", hotkey.HotkeyName)
			return nil
		},
	}
}

// newManager hands the worker the same config file this process loaded.
func (a *app) newManager(cfg *config.Config) (*daemon.Manager, error) {
	v, err := a.initViper()
	if err != nil {
		return nil, err
	}
	return daemon.NewManager(cfg, v.ConfigFileUsed())
}

func (a *app) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			m, err := a.newManager(cfg)
			if err != nil {
				return err
			}

			res, err := m.Stop(cmd.Context())
			switch res.Outcome {
			case daemon.StopNotRunning:
				fmt.Fprintln(a.stdout, "Daemon not running")
			case daemon.StopStale:
				fmt.Fprintln(a.stdout, "Daemon not running")
				fmt.Fprintln(a.stdout, mutedStyle.Render("Removed stale PID file"))
			case daemon.StopGraceful:
				fmt.Fprintf(a.stdout, "Stopping daemon (PID: %d)...\n", res.PID)
				fmt.Fprintln(a.stdout, successStyle.Render("Daemon stopped"))
			case daemon.StopKilled:
				fmt.Fprintf(a.stdout, "Stopping daemon (PID: %d)...\n", res.PID)
				fmt.Fprintln(a.stdout, warnStyle.Render("Daemon force killed"))
			}
			if err != nil {
				return fmt.Errorf("error stopping daemon: %w", err)
			}
			return nil
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and recent log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			m, err := a.newManager(cfg)
			if err != nil {
				return err
			}

			rep, err := m.Status()
			if err != nil {
				return err
			}
			a.printStatus(rep)
			return nil
		},
	}
}

func (a *app) printStatus(rep daemon.StatusReport) {
	if !rep.Running {
		fmt.Fprintln(a.stdout, "Hotkey daemon is not running")
		if rep.Stale {
			fmt.Fprintln(a.stdout, mutedStyle.Render("(stale PID file present, it is removed on next start or stop)"))
		}
		return
	}

	fmt.Fprintln(a.stdout, successStyle.Render(fmt.Sprintf("Hotkey daemon is running (PID: %d)", rep.PID)))
	fmt.Fprintf(a.stdout, "Mode: %s\n", rep.Settings)
	fmt.Fprintf(a.stdout, "Log file: %s\n", rep.LogPath)

	if len(rep.Recent) > 0 {
		fmt.Fprintln(a.stdout)
		fmt.Fprintln(a.stdout, boldStyle.Render("Recent log entries:"))
		for _, line := range rep.Recent {
			fmt.Fprintf(a.stdout, "  %s\n", line)
		}
	}
}

func (a *app) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run " + modeArgs,
		Short: "Run the daemon in the foreground (for testing)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			// A foreground run would overwrite a live daemon's record
			pid, err := daemon.NewStore(cfg.Daemon).ReadPID()
			if err == nil && daemon.Alive(pid) {
				fmt.Fprintln(a.stderr, warnStyle.Render("Daemon already running, stop it first"))
				return errSilent
			}

			return a.runWorker(cmd, args, true)
		},
	}
}

func (a *app) newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    daemon.WorkerCommand + " " + modeArgs,
		Short:  "Detached worker entry point used by start",
		Hidden: true,
		Args:   cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker(cmd, args, false)
		},
	}
}

func (a *app) runWorker(cmd *cobra.Command, args []string, echo bool) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	logger, err := a.openLogger(cfg, echo)
	if err != nil {
		return err
	}
	defer logger.Close()

	settings := capture.ParseArgs(args, cfg.Capture.DefaultRecordDuration)
	w := daemon.NewWorker(cfg, settings, logger)
	return w.Run(cmd.Context())
}
