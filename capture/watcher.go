package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/micha/capture-hotkey/logging"
)

// mediaExts are the file types the capture tool produces.
var mediaExts = []string{".png", ".jpg", ".jpeg", ".apng", ".gif", ".mp4", ".webm", ".mkv"}

// OutputWatcher reports media files that appear in the capture output
// directories, so the log shows what each capture actually produced.
type OutputWatcher struct {
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	// OnFile is called for every new media file, after logging.
	OnFile func(path string)
}

// NewOutputWatcher watches dirs. Empty entries are skipped; directories
// must exist.
func NewOutputWatcher(logger *logging.Logger, dirs ...string) (*OutputWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	for _, dir := range dirs {
		if dir == "" || slices.Contains(w.WatchList(), dir) {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return &OutputWatcher{watcher: w, logger: logger}, nil
}

// Run delivers events until ctx is done or the watcher is closed.
func (o *OutputWatcher) Run(ctx context.Context) {
	var lastFile string

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isMedia(event.Name) || event.Name == lastFile {
				continue
			}
			lastFile = event.Name
			o.logger.Info("Saved " + event.Name)
			if o.OnFile != nil {
				o.OnFile(event.Name)
			}
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			o.logger.Warn("Watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (o *OutputWatcher) Close() error {
	return o.watcher.Close()
}

func isMedia(path string) bool {
	base := filepath.Base(path)
	// Tools write to hidden temp files and rename them into place
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(mediaExts, strings.ToLower(filepath.Ext(base)))
}
