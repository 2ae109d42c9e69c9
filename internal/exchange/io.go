/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink receives an exported file, like a browser download would.
type Sink interface {
	// Write stores data under name and returns where it went.
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// Source yields a file picked for import.
type Source interface {
	Read(ctx context.Context) (name string, data []byte, err error)
}

// DirSink writes exports into a directory.
type DirSink struct{ Dir string }

func (d DirSink) Write(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure export dir: %w", err)
	}
	path := filepath.Join(d.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit export: %w", err)
	}
	return path, nil
}

// BufferSink keeps the export in memory, e.g. to stream it over HTTP.
type BufferSink struct {
	Name string
	Data []byte
}

func (b *BufferSink) Write(_ context.Context, name string, data []byte) (string, error) {
	b.Name = name
	b.Data = bytes.Clone(data)
	return name, nil
}

// FileSource reads an import file from disk.
type FileSource string

func (f FileSource) Read(_ context.Context) (string, []byte, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return "", nil, fmt.Errorf("read import file: %w", err)
	}
	return filepath.Base(string(f)), b, nil
}

// ReaderSource reads an import from any stream, capped at 16 MiB.
type ReaderSource struct {
	Name string
	R    io.Reader
}

func (r ReaderSource) Read(_ context.Context) (string, []byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.R, 16<<20))
	if err != nil {
		return "", nil, fmt.Errorf("read import: %w", err)
	}
	return r.Name, b, nil
}
