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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileKVSetGetAndBackups(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenFileKV(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	if _, ok, err := kv.Get(ctx, "sheets-creator-decks"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "sheets-creator-decks", `[]`); err != nil {
		t.Fatalf("Set #1: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // distinct backup stamp
	if err := kv.Set(ctx, "sheets-creator-decks", `[{"id":"a"}]`); err != nil {
		t.Fatalf("Set #2: %v", err)
	}
	v, ok, err := kv.Get(ctx, "sheets-creator-decks")
	if err != nil || !ok || v != `[{"id":"a"}]` {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if _, err := os.Stat(kv.Path("sheets-creator-decks")); err != nil {
		t.Fatalf("data file missing: %v", err)
	}

	hist, err := kv.History(ctx, "sheets-creator-decks", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(hist))
	}
	old, err := kv.Revision(ctx, "sheets-creator-decks", hist[0].ID)
	if err != nil || old != `[]` {
		t.Fatalf("Revision = %q, %v", old, err)
	}
	if _, err := kv.Revision(ctx, "sheets-creator-decks", 42); err != ErrNoRevision {
		t.Fatalf("expected ErrNoRevision, got %v", err)
	}

	// No temp files are left behind.
	ents, _ := os.ReadDir(kv.Root)
	for _, e := range ents {
		if filepath.Ext(e.Name()) != ".json" && e.Name() != BackupsDirName {
			t.Fatalf("unexpected leftover %s", e.Name())
		}
	}
}

func TestFileKVPrunesBackups(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenFileKV(t.TempDir(), 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := kv.Set(ctx, "k", string(rune('a'+i))); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
		time.Sleep(3 * time.Millisecond)
	}
	backups, err := kv.backups("k")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %d", len(backups))
	}
}

func TestFileKVRapidWritesKeepEveryBackup(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenFileKV(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	values := []string{"a", "b", "c", "d", "e", "f"}
	for _, v := range values {
		if err := kv.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set %s: %v", v, err)
		}
	}
	hist, err := kv.History(ctx, "k", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != len(values)-1 {
		t.Fatalf("expected %d backups, got %d", len(values)-1, len(hist))
	}
	seen := map[int64]bool{}
	for i, rev := range hist {
		if seen[rev.ID] {
			t.Fatalf("revision id %d repeats", rev.ID)
		}
		seen[rev.ID] = true
		got, err := kv.Revision(ctx, "k", rev.ID)
		if err != nil {
			t.Fatalf("Revision %d: %v", rev.ID, err)
		}
		// newest first: the last overwritten value leads
		if want := values[len(values)-2-i]; got != want {
			t.Fatalf("revision %d = %q, want %q", i, got, want)
		}
	}
}

func TestFileKVReadsUnsequencedBackups(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenFileKV(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2025, 4, 2, 10, 30, 0, 123e6, time.Local)
	name := filepath.Join(kv.Root, BackupsDirName, kv.fileName("k")+"."+ts.Format(backupStamp)+".bak")
	if err := os.WriteFile(name, []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}
	hist, err := kv.History(ctx, "k", 0)
	if err != nil || len(hist) != 1 {
		t.Fatalf("History = %v, %v", hist, err)
	}
	if hist[0].ID != ts.UnixMilli()*10000 {
		t.Fatalf("id = %d", hist[0].ID)
	}
	if got, err := kv.Revision(ctx, "k", hist[0].ID); err != nil || got != "legacy" {
		t.Fatalf("Revision = %q, %v", got, err)
	}
}

func TestFileKVKeySanitized(t *testing.T) {
	kv := &FileKV{Root: "/data"}
	if got := filepath.Base(kv.Path("../x y")); got != ".._x_y.json" {
		t.Fatalf("Path = %q", got)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "floppy"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	kv, err := Open(context.Background(), Options{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.(*MemoryKV); !ok {
		t.Fatalf("memory backend returned %T", kv)
	}
}
