// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package maintenance

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

// Watcher triggers size sweeps when history documents change on disk.
// Other host processes write to the same directory, so document growth
// is visible only through the filesystem. The maintainer's rate limiter
// absorbs event bursts; the watcher just forwards them.
type Watcher struct {
	maintainer *Maintainer
	logger     *slog.Logger
	fs         *fsnotify.Watcher
}

// NewWatcher creates a watcher over the maintainer's history directory.
func NewWatcher(m *Maintainer, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(m.files.Dir()); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		maintainer: m,
		logger:     logger.With(slog.String("component", "history_watcher")),
		fs:         fs,
	}, nil
}

// Run dispatches filesystem events until ctx is done or the watcher is
// closed. It runs one initial sweep so a directory already over the
// ceiling is trimmed without waiting for the next write.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.maintainer.Sweep(ctx); err != nil {
		w.logger.Warn("initial sweep failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create | fsnotify.Write) {
				continue
			}
			if !storage.IsDocumentName(filepath.Base(ev.Name)) {
				continue
			}
			report, err := w.maintainer.Sweep(ctx)
			if err != nil {
				w.logger.Warn("sweep failed",
					slog.String("trigger", ev.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !report.Skipped && report.MessagesEvicted > 0 {
				w.logger.Info("watcher-triggered sweep evicted history",
					slog.String("trigger", filepath.Base(ev.Name)),
					slog.Int("messages_evicted", report.MessagesEvicted),
				)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying filesystem watcher. Run returns after the
// event channel drains.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
