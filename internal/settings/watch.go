// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/gtllm/internal/logging"
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 100 * time.Millisecond

// Watch invokes onChange with freshly loaded settings whenever the
// settings file is written externally. It blocks until ctx is cancelled.
// Unparseable intermediate states (editors writing in place) are skipped.
func Watch(ctx context.Context, onChange func(*Settings)) error {
	path, err := Path()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: atomic renames replace the
	// inode, which would silently detach a file-level watch.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log := logging.New("settings")

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("settings watch error", "err", err)

		case <-timerC:
			timer = nil
			timerC = nil
			s, err := Load()
			if err != nil {
				log.Debugw("skipping unreadable settings update", "err", err)
				continue
			}
			onChange(s)
		}
	}
}
