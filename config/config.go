// Package config holds the daemon configuration. A Config is built once at
// startup from defaults, an optional YAML file and CAPTURE_HOTKEY_* environment
// variables, then passed to every component.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppName names the config directory and the environment prefix.
const AppName = "capture-hotkey"

// EnvPrefix is the prefix for environment overrides, e.g. CAPTURE_HOTKEY_DEVICE.
const EnvPrefix = "CAPTURE_HOTKEY"

// Config represents the complete daemon configuration
type Config struct {
	// Device is the evdev character device of the gamepad
	Device  string        `mapstructure:"device"`
	Capture CaptureConfig `mapstructure:"capture"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CaptureConfig controls how the external capture tool is invoked
type CaptureConfig struct {
	// Interpreter runs Script. Empty executes Script directly.
	Interpreter string `mapstructure:"interpreter"`
	// Script is the capture tool; its directory is the working directory
	Script        string `mapstructure:"script"`
	ScreenshotDir string `mapstructure:"screenshot_dir"`
	RecordingDir  string `mapstructure:"recording_dir"`

	ScreenshotCooldown time.Duration `mapstructure:"screenshot_cooldown"`
	// RecordCooldownMargin is added to the recording duration to get the cooldown
	RecordCooldownMargin time.Duration `mapstructure:"record_cooldown_margin"`
	ScreenshotTimeout    time.Duration `mapstructure:"screenshot_timeout"`

	// RecordFPS is passed to the capture tool as -f
	RecordFPS int `mapstructure:"record_fps"`
	// FrameEncodeCost is the time the tool needs per captured frame after recording
	FrameEncodeCost     time.Duration `mapstructure:"frame_encode_cost"`
	RecordTimeoutMargin time.Duration `mapstructure:"record_timeout_margin"`

	// DefaultRecordDuration is used when record mode is requested without a duration (seconds)
	DefaultRecordDuration int `mapstructure:"default_record_duration"`
}

// DaemonConfig controls the lifecycle files and the stop protocol
type DaemonConfig struct {
	PIDFile    string `mapstructure:"pid_file"`
	ConfigFile string `mapstructure:"config_file"`
	LogFile    string `mapstructure:"log_file"`

	// StopRetries and StopInterval bound how long stop waits before SIGKILL
	StopRetries  int           `mapstructure:"stop_retries"`
	StopInterval time.Duration `mapstructure:"stop_interval"`

	// ReadRetryDelay is the pause after a failed device read
	ReadRetryDelay time.Duration `mapstructure:"read_retry_delay"`
	// StartConfirmTimeout is how long start waits for the worker's PID file
	StartConfirmTimeout time.Duration `mapstructure:"start_confirm_timeout"`
	// StatusLogLines is the number of recent log lines shown by status
	StatusLogLines int `mapstructure:"status_log_lines"`
}

// LoggingConfig controls the log sink
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size before rotation (0 disables rotation)
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config matching the ROCKNIX handheld layout
func Default() *Config {
	return &Config{
		Device: "/dev/input/event3",
		Capture: CaptureConfig{
			Interpreter:           "python3",
			Script:                "/storage/roms/ports/capture/capture.py",
			ScreenshotDir:         "/storage/roms/screenshots",
			RecordingDir:          "/storage/roms/recordings",
			ScreenshotCooldown:    2 * time.Second,
			RecordCooldownMargin:  5 * time.Second,
			ScreenshotTimeout:     10 * time.Second,
			RecordFPS:             5, // APNG assembly is slow, keep the frame count low
			FrameEncodeCost:       2 * time.Second,
			RecordTimeoutMargin:   30 * time.Second,
			DefaultRecordDuration: 10,
		},
		Daemon: DaemonConfig{
			PIDFile:             "/tmp/capture_hotkey.pid",
			ConfigFile:          "/tmp/capture_hotkey.conf",
			LogFile:             "/tmp/capture_hotkey.log",
			StopRetries:         10,
			StopInterval:        500 * time.Millisecond,
			ReadRetryDelay:      time.Second,
			StartConfirmTimeout: 2 * time.Second,
			StatusLogLines:      5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 1,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("device", defaults.Device)

	v.SetDefault("capture.interpreter", defaults.Capture.Interpreter)
	v.SetDefault("capture.script", defaults.Capture.Script)
	v.SetDefault("capture.screenshot_dir", defaults.Capture.ScreenshotDir)
	v.SetDefault("capture.recording_dir", defaults.Capture.RecordingDir)
	v.SetDefault("capture.screenshot_cooldown", defaults.Capture.ScreenshotCooldown)
	v.SetDefault("capture.record_cooldown_margin", defaults.Capture.RecordCooldownMargin)
	v.SetDefault("capture.screenshot_timeout", defaults.Capture.ScreenshotTimeout)
	v.SetDefault("capture.record_fps", defaults.Capture.RecordFPS)
	v.SetDefault("capture.frame_encode_cost", defaults.Capture.FrameEncodeCost)
	v.SetDefault("capture.record_timeout_margin", defaults.Capture.RecordTimeoutMargin)
	v.SetDefault("capture.default_record_duration", defaults.Capture.DefaultRecordDuration)

	v.SetDefault("daemon.pid_file", defaults.Daemon.PIDFile)
	v.SetDefault("daemon.config_file", defaults.Daemon.ConfigFile)
	v.SetDefault("daemon.log_file", defaults.Daemon.LogFile)
	v.SetDefault("daemon.stop_retries", defaults.Daemon.StopRetries)
	v.SetDefault("daemon.stop_interval", defaults.Daemon.StopInterval)
	v.SetDefault("daemon.read_retry_delay", defaults.Daemon.ReadRetryDelay)
	v.SetDefault("daemon.start_confirm_timeout", defaults.Daemon.StartConfirmTimeout)
	v.SetDefault("daemon.status_log_lines", defaults.Daemon.StatusLogLines)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// RecordTimeout returns how long a recording of duration seconds may take,
// including the post-processing of every captured frame.
func (c *CaptureConfig) RecordTimeout(duration int) time.Duration {
	d := time.Duration(duration) * time.Second
	frames := time.Duration(duration * c.RecordFPS)
	return d + frames*c.FrameEncodeCost + c.RecordTimeoutMargin
}

// OutputFile is where a detached worker's stdout and stderr go: the log
// file's path with its extension replaced by ".out".
func (d DaemonConfig) OutputFile() string {
	return strings.TrimSuffix(d.LogFile, filepath.Ext(d.LogFile)) + ".out"
}
