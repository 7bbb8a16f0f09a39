// Package parser reads back the lines the daemon writes to its log file.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/micha/capture-hotkey/logging"
)

// Entry represents a parsed log line
type Entry struct {
	OriginalText string
	Time         time.Time
	Level        string // "INFO" unless the line carries a WARN/ERROR tag
	Message      string
}

var (
	// Lines look like:
	// [2024-03-01 12:00:00] Hotkey daemon started (PID: 1234)
	// [2024-03-01 12:00:05] ERROR Capture failed: no display exit_code=1
	lineRegex = regexp.MustCompile(`^\[(?P<Time>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]\s(?:(?P<Level>WARN|ERROR|DEBUG)(?:[+-]\d+)?\s)?(?P<Message>.*)$`)
)

// ParseLine parses one log line in the local time zone.
// Returns nil if the line has no timestamp prefix (e.g. tool output).
func ParseLine(line string) *Entry {
	return ParseLineIn(line, time.Local)
}

// ParseLineIn is ParseLine with an explicit time zone.
func ParseLineIn(line string, loc *time.Location) *Entry {
	line = strings.TrimRight(line, "\r\n")

	// Cheap reject before running the regex
	if !strings.HasPrefix(line, "[") {
		return nil
	}

	matches := lineRegex.FindStringSubmatch(line)
	if matches == nil {
		return nil
	}
	result := make(map[string]string)
	for i, name := range lineRegex.SubexpNames() {
		if name != "" {
			result[name] = matches[i]
		}
	}

	ts, err := time.ParseInLocation(logging.TimeLayout, result["Time"], loc)
	if err != nil {
		return nil
	}

	level := result["Level"]
	if level == "" {
		level = logging.LevelInfo
	}

	return &Entry{
		OriginalText: line,
		Time:         ts,
		Level:        level,
		Message:      result["Message"],
	}
}

// Filter selects log lines for the logs command.
type Filter struct {
	// Since drops entries older than this time. Zero keeps everything.
	Since time.Time
	// Pattern matches against the whole line when non-nil.
	Pattern *regexp.Regexp
	// ErrorsOnly keeps WARN and ERROR entries.
	ErrorsOnly bool
}

// Match reports whether line passes the filter. Lines without a timestamp
// pass only when no time or level criterion is set.
func (f Filter) Match(line string) bool {
	if f.Pattern != nil && !f.Pattern.MatchString(line) {
		return false
	}
	if f.Since.IsZero() && !f.ErrorsOnly {
		return true
	}

	e := ParseLine(line)
	if e == nil {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.ErrorsOnly && e.Level != logging.LevelWarn && e.Level != logging.LevelError {
		return false
	}
	return true
}
