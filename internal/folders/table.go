/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package folders holds the folder metadata table: which remote folders are
// known, which game they belong to and the bleed baked into their scans.
package folders

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"cartonclub/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed folders.yaml
var builtinYAML []byte

// file layout: game code -> list of folders.
type fileLayout map[string][]domain.Folder

// Table is a concurrency-safe lookup from folder id to metadata.
type Table struct {
	mu       sync.RWMutex
	byID     map[string]domain.Folder
	order    []string
	userFile string
}

// Parse decodes a folder table document. Each folder inherits the game of
// the section it is listed under.
func Parse(data []byte) ([]domain.Folder, error) {
	var raw fileLayout
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse folder table: %w", err)
	}
	games := make([]string, 0, len(raw))
	for g := range raw {
		games = append(games, g)
	}
	sort.Strings(games)

	var out []domain.Folder
	for _, g := range games {
		game, ok := domain.ParseGame(g)
		if !ok {
			return nil, fmt.Errorf("parse folder table: unknown game %q", g)
		}
		for _, f := range raw[g] {
			if strings.TrimSpace(f.ID) == "" {
				return nil, fmt.Errorf("parse folder table: folder %q in %s has no id", f.Name, g)
			}
			if f.Bleed < 0 {
				return nil, fmt.Errorf("parse folder table: folder %s has negative bleed", f.ID)
			}
			f.Game = game
			out = append(out, f)
		}
	}
	return out, nil
}

// Builtin returns a table with only the folders compiled into the binary.
func Builtin() *Table {
	t, err := Load("")
	if err != nil {
		panic(err)
	}
	return t
}

// Load builds the table from the built-in folders and, when userFile is set
// and exists, merges the user's folders over them (same id wins).
func Load(userFile string) (*Table, error) {
	t := &Table{userFile: userFile}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// New builds a table from explicit rows. Used by tests and tools.
func New(rows ...domain.Folder) *Table {
	t := &Table{}
	t.replace(rows)
	return t
}

// Reload re-reads the user file. On error the current contents are kept.
func (t *Table) Reload() error {
	rows, err := Parse(builtinYAML)
	if err != nil {
		return err
	}
	if t.userFile != "" {
		data, rerr := os.ReadFile(t.userFile)
		switch {
		case errors.Is(rerr, os.ErrNotExist):
		case rerr != nil:
			return fmt.Errorf("read %s: %w", t.userFile, rerr)
		default:
			extra, perr := Parse(data)
			if perr != nil {
				return fmt.Errorf("%s: %w", t.userFile, perr)
			}
			rows = append(rows, extra...)
		}
	}
	t.replace(rows)
	return nil
}

func (t *Table) replace(rows []domain.Folder) {
	byID := make(map[string]domain.Folder, len(rows))
	order := make([]string, 0, len(rows))
	for _, f := range rows {
		if _, seen := byID[f.ID]; !seen {
			order = append(order, f.ID)
		}
		byID[f.ID] = f
	}
	t.mu.Lock()
	t.byID, t.order = byID, order
	t.mu.Unlock()
}

// Len returns the number of known folders.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Get returns the folder with the given id.
func (t *Table) Get(id string) (domain.Folder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byID[id]
	return f, ok
}

// Lookup returns the first known folder among parents.
func (t *Table) Lookup(parents []string) (domain.Folder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range parents {
		if f, ok := t.byID[p]; ok {
			return f, true
		}
	}
	return domain.Folder{}, false
}

// BleedFor returns the bleed of the first known parent folder.
func (t *Table) BleedFor(parents []string) (float64, bool) {
	f, ok := t.Lookup(parents)
	return f.Bleed, ok
}

// ByGame lists the folders of one game in table order.
func (t *Table) ByGame(g domain.Game) []domain.Folder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Folder
	for _, id := range t.order {
		if f := t.byID[id]; f.Game == g {
			out = append(out, f)
		}
	}
	return out
}

// IDs lists the folder ids of one game; the default search scope.
func (t *Table) IDs(g domain.Game) []string {
	fs := t.ByGame(g)
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	return ids
}
