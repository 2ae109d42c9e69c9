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
	"fmt"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // file | sqlite | postgres | redis | memory
	Dir         string
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
	Keep        int
}

// Open returns the configured backend. An empty backend means "file".
func Open(ctx context.Context, o Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(o.Backend)) {
	case "", "file":
		return OpenFileKV(o.Dir, o.Keep)
	case "sqlite":
		return OpenSQLiteKV(ctx, o.SQLitePath, o.Keep)
	case "postgres", "postgresql":
		return OpenPostgresKV(ctx, o.PostgresDSN, o.Keep)
	case "redis":
		return OpenRedisKV(ctx, o.RedisURL, o.Keep)
	case "memory":
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", o.Backend)
	}
}
