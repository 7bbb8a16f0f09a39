package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/daemon"
	"github.com/micha/capture-hotkey/logging"
)

// errSilent ends a command with exit status 1 after it printed its own message.
var errSilent = errors.New("")

func main() {
	ctx, stop := daemon.NotifyContext(context.Background())
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// app carries the state shared by all commands. The config is resolved once,
// on first use, and handed to each component explicitly.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "capture-hotkey",
		Short: "Gamepad hotkey daemon for screenshots and screen recordings",
		Long: `capture-hotkey watches a gamepad input device and runs the capture tool
when the hotkey (right stick click) is pressed.

Examples:
  capture-hotkey start screenshot     Start in screenshot mode
  capture-hotkey start record 10      Start in record mode (10 seconds)
  capture-hotkey stop                 Stop running daemon
  capture-hotkey status               Show daemon status
  capture-hotkey run                  Run in foreground (for testing)`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Argument errors above this point still print usage
			cmd.SilenceUsage = true
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(a.stderr)
			_ = cmd.Usage()
			return errSilent
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/capture-hotkey/config.yaml)")

	root.AddCommand(
		a.newStartCmd(),
		a.newStopCmd(),
		a.newStatusCmd(),
		a.newRunCmd(),
		a.newWorkerCmd(),
		a.newLogsCmd(),
		a.newCheckCmd(),
		a.newConfigCmd(),
	)
	return root
}

// initViper builds the viper instance: defaults, then the config file if
// present, then CAPTURE_HOTKEY_* environment variables.
func (a *app) initViper() (*viper.Viper, error) {
	if a.v != nil {
		return a.v, nil
	}

	v := viper.New()
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
	}

	v.SetEnvPrefix(config.EnvPrefix)
	// e.g. CAPTURE_HOTKEY_DAEMON_LOG_FILE for daemon.log_file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	a.v = v
	return v, nil
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	v, err := a.initViper()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// openLogger opens the daemon log file. echo mirrors lines to stdout.
func (a *app) openLogger(cfg *config.Config, echo bool) (*logging.Logger, error) {
	opts := logging.Options{
		Path:  cfg.Daemon.LogFile,
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	}
	if echo {
		opts.Echo = a.stdout
	}
	return logging.New(opts)
}
