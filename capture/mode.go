// Package capture launches the external screenshot/recording tool when the
// hotkey fires, gated by a mode-dependent cooldown.
package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects what the capture tool produces.
type Mode string

const (
	ModeScreenshot Mode = "screenshot"
	ModeRecord     Mode = "record"
)

// ParseMode maps a command line word to a Mode. Short aliases are accepted.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "screenshot", "ss", "s":
		return ModeScreenshot, true
	case "record", "rec", "r", "video", "v":
		return ModeRecord, true
	}
	return "", false
}

// Settings is the capture configuration chosen at start time. It does not
// change for the lifetime of a worker.
type Settings struct {
	Mode Mode `json:"mode"`
	// Duration is the recording length in seconds; zero in screenshot mode.
	Duration int `json:"duration"`
}

// ParseArgs resolves "[mode] [duration]" arguments. Unknown modes fall back
// to screenshot, and record mode ignores a missing, non-numeric or
// non-positive duration in favor of defaultDuration.
func ParseArgs(args []string, defaultDuration int) Settings {
	s := Settings{Mode: ModeScreenshot}
	if len(args) == 0 {
		return s
	}
	if mode, ok := ParseMode(args[0]); ok {
		s.Mode = mode
	}
	if s.Mode != ModeRecord {
		return s
	}

	s.Duration = defaultDuration
	if len(args) >= 2 {
		if d, err := strconv.Atoi(args[1]); err == nil && d > 0 {
			s.Duration = d
		}
	}
	return s
}

// Normalize fixes up settings read from disk or built by hand.
func (s Settings) Normalize(defaultDuration int) Settings {
	switch s.Mode {
	case ModeRecord:
		if s.Duration <= 0 {
			s.Duration = defaultDuration
		}
	default:
		s.Mode = ModeScreenshot
		s.Duration = 0
	}
	return s
}

// String renders the mode the way status output shows it: "Screenshot" or
// "Record 10s".
func (s Settings) String() string {
	if s.Mode == ModeRecord {
		return fmt.Sprintf("Record %ds", s.Duration)
	}
	return "Screenshot"
}

// Args returns the capture tool arguments for this mode.
func (s Settings) Args(fps int) []string {
	if s.Mode == ModeRecord {
		return []string{"record", "-d", strconv.Itoa(s.Duration), "-f", strconv.Itoa(fps)}
	}
	return []string{"screenshot"}
}
