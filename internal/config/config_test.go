/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) { return m[service+"/"+key], nil }
func (m memTokens) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}
func (m memTokens) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config file at a temp dir and swaps the keyring for a map.
func isolate(t *testing.T) (string, memTokens) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvDriveAPIKey, "")
	old := tokenStore
	mem := memTokens{}
	tokenStore = mem
	t.Cleanup(func() { tokenStore = old })
	return path, mem
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	isolate(t)
	cfg, key, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty api key, got %q", key)
	}
	if cfg.Storage.Backend != "file" || cfg.Print.Host != "pdf" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if got := cfg.Print.ImageTimeout(); got != 60*time.Second {
		t.Fatalf("ImageTimeout = %v", got)
	}
}

func TestSaveThenLoadRoundTripsFileAndKeyring(t *testing.T) {
	path, mem := isolate(t)
	cfg := Defaults()
	cfg.Storage.Backend = "sqlite"
	cfg.Drive.Folders = []string{"f1", "f2"}
	cfg.Print.GraceMs = 250
	if err := Save(cfg, "secret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if mem[keyringService+"/"+keyringAPIKey] != "secret" {
		t.Fatalf("api key not stored in keyring: %v", mem)
	}
	got, key, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if key != "secret" {
		t.Fatalf("api key = %q", key)
	}
	if got.Storage.Backend != "sqlite" || len(got.Drive.Folders) != 2 || got.Print.Grace() != 250*time.Millisecond {
		t.Fatalf("loaded config mismatch: %+v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStorage, "Redis")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/2")
	t.Setenv(EnvImageTimeoutMs, "1500")
	t.Setenv(EnvTelemetryOptIn, "yes")
	t.Setenv(EnvDriveAPIKey, "from-env")
	cfg, key, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Print.ImageTimeout() != 1500*time.Millisecond {
		t.Fatalf("image timeout override not applied: %v", cfg.Print.ImageTimeout())
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("telemetry override not applied")
	}
	if key != "from-env" {
		t.Fatalf("api key env override = %q", key)
	}
	if env, ok := EnvOverrideFor("storage.backend"); !ok || env != EnvStorage {
		t.Fatalf("EnvOverrideFor(storage.backend) = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("server.addr"); ok {
		t.Fatalf("server.addr should not be overridden")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Logging: LoggingConfig{Level: " DEBUG ", Format: "json", Source: true, File: "/tmp/cc.log"}}
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/cc.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	if dst.Storage.Backend != "file" {
		t.Fatalf("empty fields must keep defaults: %#v", dst.Storage)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("storage: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
