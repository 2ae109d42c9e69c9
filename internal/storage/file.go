/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	applog "cartonclub/internal/log"
)

const (
	BackupsDirName = "backups"
	backupStamp    = "20060102-150405.000"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileKV keeps every key in its own JSON file under Root. Writes go to a
// temp file that is synced and renamed over the target, and the previous
// file is first copied to a timestamped backup.
type FileKV struct {
	Root string
	// Keep bounds the number of backups per key; 0 keeps all.
	Keep int
}

// OpenFileKV creates root and its backups folder if needed.
func OpenFileKV(root string, keep int) (*FileKV, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileKV{Root: root, Keep: keep}, nil
}

func (f *FileKV) fileName(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_") + ".json"
}

// Path returns the file that holds key.
func (f *FileKV) Path(key string) string { return filepath.Join(f.Root, f.fileName(key)) }

// Get reads the key's file. An unreadable file falls back to the newest backup.
func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		backups, berr := f.backups(key)
		if berr != nil || len(backups) == 0 {
			return "", false, fmt.Errorf("read %s: %w", key, err)
		}
		applog.WithComponent("storage").Warn("reading latest backup", slog.String("key", key), slog.Any("err", err))
		b, berr = os.ReadFile(backups[len(backups)-1])
		if berr != nil {
			return "", false, fmt.Errorf("read %s: %w; backup attempt: %v", key, err, berr)
		}
	}
	return string(b), true, nil
}

// Set writes value transactionally, backing up the previous file.
func (f *FileKV) Set(_ context.Context, key, value string) error {
	target := f.Path(key)
	bdir := filepath.Join(f.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(target); statErr == nil {
		bname := f.backupName(bdir, key, time.Now())
		if err := copyFile(target, filepath.Join(bdir, bname)); err != nil {
			return fmt.Errorf("backup %s: %w", key, err)
		}
		f.prune(key)
	}

	temp := filepath.Join(f.Root, fmt.Sprintf(".%s.tmp-%d-%d", f.fileName(key), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, []byte(value)); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", err)
	}
	// Windows cannot rename over an existing file.
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if err := os.Rename(temp, target); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) Close() error { return nil }

// backups lists backup files for key, oldest first.
func (f *FileKV) backups(key string) ([]string, error) {
	bdir := filepath.Join(f.Root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, err
	}
	prefix := f.fileName(key) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // the timestamp in the name sorts chronologically
	return out, nil
}

func (f *FileKV) prune(key string) {
	if f.Keep <= 0 {
		return
	}
	all, err := f.backups(key)
	if err != nil || len(all) <= f.Keep {
		return
	}
	for _, p := range all[:len(all)-f.Keep] {
		_ = os.Remove(p)
	}
}

// backupName picks a free backup file name. Writes within the same
// millisecond get increasing sequence suffixes.
func (f *FileKV) backupName(bdir, key string, now time.Time) string {
	stamp := now.Format(backupStamp)
	for seq := 0; ; seq++ {
		name := fmt.Sprintf("%s.%s-%04d.bak", f.fileName(key), stamp, seq)
		if _, err := os.Stat(filepath.Join(bdir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
	}
}

// backupRevision parses a backup file name. The id is the stamp in Unix
// milliseconds times 10000 plus the sequence number.
func (f *FileKV) backupRevision(key, path string) (int64, time.Time, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), f.fileName(key)+"."), ".bak")
	var seq int64
	if i := strings.LastIndexByte(stamp, '-'); i > 0 && len(stamp)-i == 5 {
		n, err := strconv.ParseInt(stamp[i+1:], 10, 64)
		if err != nil {
			return 0, time.Time{}, false
		}
		stamp, seq = stamp[:i], n
	}
	ts, err := time.ParseInLocation(backupStamp, stamp, time.Local)
	if err != nil {
		return 0, time.Time{}, false
	}
	return ts.UnixMilli()*10000 + seq, ts, true
}

// History lists backups of key as revisions, newest first.
func (f *FileKV) History(_ context.Context, key string, limit int) ([]Revision, error) {
	all, err := f.backups(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Revision
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		id, ts, ok := f.backupRevision(key, all[i])
		if !ok {
			continue
		}
		rev := Revision{ID: id, Saved: ts}
		if st, err := os.Stat(all[i]); err == nil {
			rev.Size = int(st.Size())
		}
		out = append(out, rev)
	}
	return out, nil
}

// Revision returns the content of the backup with the given id.
func (f *FileKV) Revision(_ context.Context, key string, id int64) (string, error) {
	all, err := f.backups(key)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	for _, p := range all {
		if rid, _, ok := f.backupRevision(key, p); ok && rid == id {
			b, err := os.ReadFile(p)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
	return "", ErrNoRevision
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = sf.Close() }()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
