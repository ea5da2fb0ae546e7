package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change describes a reloaded config file whose coordination settings differ
// from the running ones.
type Change struct {
	Path           string
	OldFingerprint string
	NewFingerprint string
	Config         *Config
}

// Watch observes the config file and calls onChange whenever a reload yields
// a different fingerprint. Assignments are fixed for the life of the process,
// so callers only report the drift; picking it up takes a restart.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, current *Config, logger *slog.Logger, onChange func(Change)) error {
	if current.SourceFile == "" {
		return fmt.Errorf("config has no source file to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files on save, so watch the directory and filter.
	dir := filepath.Dir(current.SourceFile)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	fingerprint := current.Fingerprint()
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != current.SourceFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case <-debounce:
			debounce = nil
			next, err := Load(current.SourceFile)
			if err != nil {
				logger.Warn("config reload failed", "path", current.SourceFile, "error", err)
				continue
			}
			nextFP := next.Fingerprint()
			if nextFP == fingerprint {
				continue
			}
			logger.Warn("config fingerprint changed; restart required for new assignments",
				"path", current.SourceFile, "old", fingerprint, "new", nextFP)
			onChange(Change{
				Path:           current.SourceFile,
				OldFingerprint: fingerprint,
				NewFingerprint: nextFP,
				Config:         next,
			})
			fingerprint = nextFP
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
