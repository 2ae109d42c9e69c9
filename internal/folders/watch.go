/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package folders

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	applog "cartonclub/internal/log"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the table whenever the user folder file changes, until ctx
// is done. The parent directory is watched so editors that save by rename
// are picked up. Bursts of events are coalesced with a short debounce.
func (t *Table) Watch(ctx context.Context, onReload func(error)) error {
	if t.userFile == "" {
		return errors.New("folder table has no user file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(t.userFile)); err != nil {
		_ = w.Close()
		return err
	}
	l := applog.WithOperation(applog.WithComponent("folders"), "watch").With(slog.String("file", t.userFile))
	go t.watchLoop(ctx, w, l, onReload)
	return nil
}

func (t *Table) watchLoop(ctx context.Context, w *fsnotify.Watcher, l *slog.Logger, onReload func(error)) {
	defer func() { _ = w.Close() }()
	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	target := filepath.Clean(t.userFile)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.Warn("watch error", slog.Any("err", err))
		case <-timer.C:
			err := t.Reload()
			if err != nil {
				l.Warn("folder table reload failed, keeping previous table", slog.Any("err", err))
			} else {
				l.Info("folder table reloaded", slog.Int("folders", t.Len()))
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}
