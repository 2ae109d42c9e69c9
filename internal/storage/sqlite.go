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
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "cartonclub/internal/log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// language=SQL
// dialect=SQLite
const sqliteUpsertSQL = `INSERT INTO kv(key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const sqliteInsertHistorySQL = `INSERT INTO kv_history(key, value, saved_at) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const sqlitePruneHistorySQL = `DELETE FROM kv_history WHERE key = ? AND id NOT IN (
	SELECT id FROM kv_history WHERE key = ? ORDER BY id DESC LIMIT ?
)`

// language=SQL
// dialect=SQLite
const sqliteListHistorySQL = `SELECT id, saved_at, length(value) FROM kv_history WHERE key = ? ORDER BY id DESC LIMIT ?`

// SQLiteKV stores keys in an embedded SQLite database and keeps the last
// Keep values of every key in a history table.
type SQLiteKV struct {
	db   *sql.DB
	path string
	keep int
}

// OpenSQLiteKV opens (creating if needed) the database at path, moves a
// corrupt file aside, applies migrations and enables WAL.
func OpenSQLiteKV(ctx context.Context, path string, keep int) (*SQLiteKV, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	if err := setAsideIfCorrupt(ctx, path); err != nil {
		l.Warn("corrupt database moved aside", slog.Any("err", err))
	}
	if err := migrateSQLite(path); err != nil {
		l.Error("migrations failed", slog.Any("err", err))
		return nil, err
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(cctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	l.Debug("sqlite ready")
	return &SQLiteKV{db: db, path: path, keep: keep}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func migrateSQLite(path string) error {
	sub, err := fs.Sub(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("access migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	norm := filepath.ToSlash(path)
	if filepath.IsAbs(path) && !strings.HasPrefix(norm, "/") {
		norm = "/" + norm
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+norm)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// setAsideIfCorrupt renames a database that fails quick_check so a fresh
// one can be created in its place. The renamed file is kept for recovery.
func setAsideIfCorrupt(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	db, err := openSQLite(path)
	if err != nil {
		return err
	}
	var chk string
	qerr := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk)
	_ = db.Close()
	if qerr == nil && strings.EqualFold(strings.TrimSpace(chk), "ok") {
		return nil
	}
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, aside); err != nil {
		return fmt.Errorf("move corrupt db: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	if qerr != nil {
		return fmt.Errorf("quick_check: %w (moved to %s)", qerr, aside)
	}
	return fmt.Errorf("quick_check: %s (moved to %s)", chk, aside)
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set upserts the value and appends it to the key's history in one transaction.
func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqliteUpsertSQL, key, value, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertHistorySQL, key, value, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("append history %s: %w", key, err)
	}
	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx, sqlitePruneHistorySQL, key, key, s.keep); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prune history %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteKV) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, sqliteListHistorySQL, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var r Revision
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Size); err != nil {
			return nil, err
		}
		r.Saved, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteKV) Revision(ctx context.Context, key string, id int64) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_history WHERE key = ? AND id = ?`, key, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRevision
	}
	return v, err
}

func (s *SQLiteKV) Close() error { return s.db.Close() }
