// Package monitor reads the daemon log: the last few lines for status and a
// live follow for "logs -f".
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/nxadm/tail"
)

// Monitor watches a file for new lines
type Monitor struct {
	filePath string
	tail     *tail.Tail
}

// NewMonitor follows filePath starting at its end.
func NewMonitor(filePath string) (*Monitor, error) {
	t, err := tail.TailFile(filePath, tail.Config{
		Follow:    true,
		ReOpen:    true, // the log is rotated by the worker
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail file: %w", err)
	}

	return &Monitor{
		filePath: filePath,
		tail:     t,
	}, nil
}

// Follow sends every new line to fn until ctx is done or the tail fails.
func (m *Monitor) Follow(ctx context.Context, fn func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-m.tail.Lines:
			if !ok {
				return m.tail.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fn(line.Text)
		}
	}
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	m.tail.Cleanup()
	_ = m.tail.Stop()
}

// LastLines returns up to n trailing lines of filePath. A missing file
// yields no lines and no error.
func LastLines(filePath string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return LastLinesMatching(filePath, n, nil)
}

// LastLinesMatching returns up to n trailing lines for which match reports
// true; n <= 0 returns every matching line. A nil match keeps all lines.
func LastLinesMatching(filePath string, n int, match func(string) bool) ([]string, error) {
	if _, err := os.Stat(filePath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer t.Cleanup()

	var ring []string
	for line := range t.Lines {
		if line.Err != nil {
			return nil, line.Err
		}
		if match != nil && !match(line.Text) {
			continue
		}
		if n > 0 && len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line.Text)
	}
	return ring, nil
}
