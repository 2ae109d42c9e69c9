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
	"strings"
	"testing"
)

func TestSQLiteKVHistoryAndPrune(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cc.sqlite")
	kv, err := OpenSQLiteKV(ctx, path, 3)
	if err != nil {
		t.Fatalf("OpenSQLiteKV: %v", err)
	}
	defer func() { _ = kv.Close() }()

	if _, ok, err := kv.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	for _, v := range []string{"v1", "v2", "v3", "v4", "v5"} {
		if err := kv.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set(%s): %v", v, err)
		}
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || v != "v5" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	hist, err := kv.History(ctx, "k", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected history pruned to 3, got %d", len(hist))
	}
	oldest, err := kv.Revision(ctx, "k", hist[2].ID)
	if err != nil || oldest != "v3" {
		t.Fatalf("oldest kept revision = %q, %v", oldest, err)
	}
	if _, err := kv.Revision(ctx, "k", -1); err != ErrNoRevision {
		t.Fatalf("expected ErrNoRevision, got %v", err)
	}
}

func TestSQLiteKVReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cc.sqlite")
	kv, err := OpenSQLiteKV(ctx, path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "k", "persisted"); err != nil {
		t.Fatal(err)
	}
	_ = kv.Close()

	kv2, err := OpenSQLiteKV(ctx, path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = kv2.Close() }()
	v, ok, err := kv2.Get(ctx, "k")
	if err != nil || !ok || v != "persisted" {
		t.Fatalf("Get after reopen = %q, %v, %v", v, ok, err)
	}
}

func TestSQLiteKVRecoversFromCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "cc.sqlite")
	if err := os.WriteFile(path, []byte("THIS IS NOT SQLITE AT ALL, JUST SOME BYTES"), 0o644); err != nil {
		t.Fatal(err)
	}
	kv, err := OpenSQLiteKV(ctx, path, 0)
	if err != nil {
		t.Fatalf("OpenSQLiteKV on corrupt file: %v", err)
	}
	defer func() { _ = kv.Close() }()
	if err := kv.Set(ctx, "k", "fresh"); err != nil {
		t.Fatalf("Set after recovery: %v", err)
	}
	ents, _ := os.ReadDir(dir)
	found := false
	for _, e := range ents {
		if strings.Contains(e.Name(), ".corrupt-") {
			found = true
		}
	}
	if !found {
		t.Fatalf("corrupt database was not kept aside")
	}
}
