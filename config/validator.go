package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "daemon.stop_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Device == "" {
		errors = append(errors, ValidationError{Field: "device", Value: c.Device, Message: "must not be empty"})
	}

	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateDaemon()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError
	cc := c.Capture

	if cc.Script == "" {
		errors = append(errors, ValidationError{Field: "capture.script", Value: cc.Script, Message: "must not be empty"})
	}
	if cc.RecordFPS <= 0 {
		errors = append(errors, ValidationError{Field: "capture.record_fps", Value: cc.RecordFPS, Message: "must be positive"})
	}
	if cc.DefaultRecordDuration <= 0 {
		errors = append(errors, ValidationError{Field: "capture.default_record_duration", Value: cc.DefaultRecordDuration, Message: "must be positive"})
	}
	if cc.ScreenshotTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "capture.screenshot_timeout", Value: cc.ScreenshotTimeout, Message: "must be positive"})
	}
	if cc.ScreenshotCooldown < 0 {
		errors = append(errors, ValidationError{Field: "capture.screenshot_cooldown", Value: cc.ScreenshotCooldown, Message: "must not be negative"})
	}
	if cc.RecordCooldownMargin < 0 {
		errors = append(errors, ValidationError{Field: "capture.record_cooldown_margin", Value: cc.RecordCooldownMargin, Message: "must not be negative"})
	}
	if cc.FrameEncodeCost < 0 || cc.RecordTimeoutMargin < 0 {
		errors = append(errors, ValidationError{Field: "capture.record_timeout_margin", Value: cc.RecordTimeoutMargin, Message: "timeout terms must not be negative"})
	}

	return errors
}

func (c *Config) validateDaemon() []ValidationError {
	var errors []ValidationError
	d := c.Daemon

	for field, path := range map[string]string{
		"daemon.pid_file":    d.PIDFile,
		"daemon.config_file": d.ConfigFile,
		"daemon.log_file":    d.LogFile,
	} {
		if path == "" {
			errors = append(errors, ValidationError{Field: field, Value: path, Message: "must not be empty"})
		}
	}
	if d.PIDFile != "" && d.PIDFile == d.ConfigFile {
		errors = append(errors, ValidationError{Field: "daemon.config_file", Value: d.ConfigFile, Message: "must differ from daemon.pid_file"})
	}
	if d.LogFile != "" && d.OutputFile() == d.LogFile {
		errors = append(errors, ValidationError{Field: "daemon.log_file", Value: d.LogFile, Message: "must not use the .out extension"})
	}
	if d.StopRetries < 0 {
		errors = append(errors, ValidationError{Field: "daemon.stop_retries", Value: d.StopRetries, Message: "must not be negative"})
	}
	if d.StopInterval <= 0 {
		errors = append(errors, ValidationError{Field: "daemon.stop_interval", Value: d.StopInterval, Message: "must be positive"})
	}
	if d.ReadRetryDelay <= 0 {
		errors = append(errors, ValidationError{Field: "daemon.read_retry_delay", Value: d.ReadRetryDelay, Message: "must be positive"})
	}
	if d.StartConfirmTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "daemon.start_confirm_timeout", Value: d.StartConfirmTimeout, Message: "must be positive"})
	}
	if d.StatusLogLines < 0 {
		errors = append(errors, ValidationError{Field: "daemon.status_log_lines", Value: d.StatusLogLines, Message: "must not be negative"})
	}

	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must not be negative"})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must not be negative"})
	}

	return errors
}
