// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write bursts editors produce on save.
const watchDebounce = 250 * time.Millisecond

// Watcher re-loads the config file when it changes on disk and
// publishes each valid new Config on a channel. Invalid edits are
// logged and skipped; the previous config stays in effect.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	updates chan Config
}

// NewWatcher starts watching the directory containing path. Watching
// the directory instead of the file survives the rename-and-replace
// dance most editors do on save.
//
// # Inputs
//   - path: config file to watch.
//   - logger: destination for reload and skip messages.
//
// # Outputs
//   - *Watcher: running watcher; call Run to pump events.
//   - error: fsnotify setup failure.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		updates: make(chan Config, 1),
	}, nil
}

// Updates delivers each successfully re-loaded Config. The channel is
// closed when Run returns.
func (w *Watcher) Updates() <-chan Config {
	return w.updates
}

// Run pumps filesystem events until the context is cancelled. It
// never returns an error for a bad config edit; the edit is logged
// and ignored.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	defer close(w.updates)

	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			pending = debounce.C

		case <-pending:
			pending = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload skipped",
					"path", w.path, "error", err.Error())
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)
			select {
			case w.updates <- cfg:
			default:
				// Drop the stale pending update and keep the newest.
				select {
				case <-w.updates:
				default:
				}
				w.updates <- cfg
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}
