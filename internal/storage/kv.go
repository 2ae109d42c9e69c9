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
	"sync"
	"time"
)

// ErrNoRevision is returned when a requested history entry does not exist.
var ErrNoRevision = errors.New("revision not found")

// KV is a string key-value store.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Revision is one previously stored value of a key.
type Revision struct {
	ID    int64     `json:"id"`
	Saved time.Time `json:"saved"`
	Size  int       `json:"size"`
}

// Historian is implemented by backends that keep previous values of a key.
// Revisions are listed newest first.
type Historian interface {
	History(ctx context.Context, key string, limit int) ([]Revision, error)
	Revision(ctx context.Context, key string, id int64) (string, error)
}

// MemoryKV is an in-process KV. The zero value is ready to use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
	// FailSet, when non-nil, is returned by Set. Lets tests simulate a full disk.
	FailSet error
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{} }

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Close() error { return nil }
