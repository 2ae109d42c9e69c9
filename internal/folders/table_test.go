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
	"os"
	"path/filepath"
	"testing"
	"time"

	"cartonclub/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTable(t *testing.T) {
	tbl := Builtin()
	require.Greater(t, tbl.Len(), 100)

	mtg := tbl.ByGame(domain.GameMTG)
	require.NotEmpty(t, mtg)
	for _, f := range mtg {
		assert.Equal(t, domain.GameMTG, f.Game)
	}
	assert.Len(t, tbl.IDs(domain.GameOPTCG), len(tbl.ByGame(domain.GameOPTCG)))

	// Planechase scans carry a 1mm bleed.
	b, ok := tbl.BleedFor([]string{"unknown", "1HPuw0u6y0cvbId0JT8wqLfZp0sjdfbkc"})
	require.True(t, ok)
	assert.Equal(t, 1.0, b)
}

func TestLookupMisses(t *testing.T) {
	tbl := New(domain.Folder{ID: "f1", Bleed: 1, Game: domain.GameMTG})
	_, ok := tbl.Lookup(nil)
	assert.False(t, ok)
	b, ok := tbl.BleedFor([]string{"nope"})
	assert.False(t, ok)
	assert.Zero(t, b)
}

func TestParseRejectsBadRows(t *testing.T) {
	_, err := Parse([]byte("chess:\n  - id: x\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("mtg:\n  - name: no id\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("mtg:\n  - id: x\n    bleed: -1\n"))
	assert.Error(t, err)
}

func TestUserFileOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folders.yaml")
	doc := "optcg:\n  - id: '1HPuw0u6y0cvbId0JT8wqLfZp0sjdfbkc'\n    name: moved\n    bleed: 0\n  - id: mine\n    name: Mine\n    bleed: 3\n    origin: custom\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	f, ok := tbl.Get("1HPuw0u6y0cvbId0JT8wqLfZp0sjdfbkc")
	require.True(t, ok)
	assert.Equal(t, domain.GameOPTCG, f.Game)
	assert.Zero(t, f.Bleed)
	mine, ok := tbl.Get("mine")
	require.True(t, ok)
	assert.Equal(t, domain.OriginCustom, mine.Origin)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folders.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mtg:\n  - id: a\n    bleed: 0\n"), 0o644))
	tbl, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan error, 4)
	require.NoError(t, tbl.Watch(ctx, func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("mtg:\n  - id: a\n    bleed: 2\n"), 0o644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
			if b, _ := tbl.BleedFor([]string{"a"}); b == 2 {
				return
			}
		case <-deadline:
			t.Fatal("table was not reloaded")
		}
	}
}
