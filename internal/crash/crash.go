/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a fatal panic into a crash report and a last snapshot
// of the user's collections.
package crash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"cartonclub/internal/domain"
	applog "cartonclub/internal/log"
	"cartonclub/internal/telemetry"
	"cartonclub/internal/version"
)

// Snapshotter exposes the collections to save after a crash.
type Snapshotter interface {
	Collections() []domain.Collection
}

var (
	exitFn           = os.Exit
	stderr io.Writer = os.Stderr
	now              = time.Now
)

// Recover must be deferred directly. On panic it logs the stack, writes a
// report and an autosave of snap into dir (the temp dir when empty),
// optionally uploads the report and exits with status 2.
//
//	defer crash.Recover(store, cfg.General.DataDir)
func Recover(snap Snapshotter, dir string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	report, reportPath, err := writeReport(dir, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if report != nil {
		telemetry.Default().UploadCrash(report)
	}
	if snap != nil {
		if path, err := autosave(dir, snap); err != nil {
			l.Error("autosave failed", slog.Any("err", err))
		} else {
			l.Info("autosave written", slog.String("path", path))
			_, _ = fmt.Fprintf(stderr, "Your collections were saved to: %s\n", path)
		}
	}
	_, _ = fmt.Fprintf(stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func crashDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	return filepath.Join(dir, "crash")
}

func writeReport(dir string, panicVal any, stack []byte) ([]byte, string, error) {
	dir = crashDir(dir)
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now().Format("20060102-150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, path, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Carton Club Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return buf.Bytes(), path, err
	}
	return buf.Bytes(), path, nil
}

// autosave writes all collections as one JSON array. Each entry of the
// array is importable on its own.
func autosave(dir string, snap Snapshotter) (string, error) {
	cs := snap.Collections()
	if cs == nil {
		cs = []domain.Collection{}
	}
	b, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return "", err
	}
	dir = crashDir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("autosave-%s.json", now().Format("20060102-150405")))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}
