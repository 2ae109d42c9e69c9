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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted as YAML in the user scope.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Storage       StorageConfig `yaml:"storage"`
	Drive         DriveConfig   `yaml:"drive"`
	Print         PrintConfig   `yaml:"print"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	DataDir        string `yaml:"data_dir"`
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	// FoldersFile is an optional YAML table merged over the built-in folder table.
	FoldersFile string `yaml:"folders_file"`
}

// StorageConfig selects the key-value backend that holds the collections blob.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // file | sqlite | postgres | redis
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisURL    string `yaml:"redis_url"`
	KeepHistory int    `yaml:"keep_history"`
}

type DriveConfig struct {
	BaseURL        string   `yaml:"base_url"`
	TimeoutMs      int      `yaml:"timeout_ms"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
	MaxResults     int      `yaml:"max_results"`
	Game           string   `yaml:"game"`
	Folders        []string `yaml:"folders"`
	// API key is not stored on disk; it lives in the OS keychain.
}

type PrintConfig struct {
	Host           string `yaml:"host"` // pdf | browser
	OutDir         string `yaml:"out_dir"`
	ImageTimeoutMs int    `yaml:"image_timeout_ms"`
	GraceMs        int    `yaml:"grace_ms"`
	LandmarksURL   string `yaml:"landmarks_url"`
	ChromeBin      string `yaml:"chrome_bin"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{DataDir: defaultDataDir()},
		Storage:       StorageConfig{Backend: "file", KeepHistory: 20},
		Drive: DriveConfig{
			BaseURL:        "https://www.googleapis.com/drive/v3",
			TimeoutMs:      15000,
			RequestsPerSec: 5,
			MaxResults:     100,
			Game:           "optcg",
		},
		Print: PrintConfig{
			Host:           "pdf",
			ImageTimeoutMs: 60000,
			GraceMs:        1000,
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "CC_CONFIG"
	EnvDataDir        = "CC_DATA_DIR"
	EnvTelemetryOptIn = "CC_TELEMETRY_OPT_IN"
	EnvStorage        = "CC_STORAGE"
	EnvPostgresDSN    = "CC_POSTGRES_DSN"
	EnvRedisURL       = "CC_REDIS_URL"
	EnvDriveURL       = "CC_DRIVE_URL"
	EnvDriveAPIKey    = "CC_DRIVE_API_KEY"
	EnvDriveTimeoutMs = "CC_DRIVE_TIMEOUT_MS"
	EnvPrintHost      = "CC_PRINT_HOST"
	EnvImageTimeoutMs = "CC_IMAGE_TIMEOUT_MS"
	EnvLandmarksURL   = "CC_LANDMARKS_URL"
	EnvChromeBin      = "CC_CHROME_BIN"
	EnvServerAddr     = "CC_ADDR"
	EnvLogLevel       = "CC_LOG_LEVEL"
	EnvLogFormat      = "CC_LOG_FORMAT"
	EnvLogSource      = "CC_LOG_SOURCE"
	EnvLogFile        = "CC_LOG_FILE"
)

func appDir() string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(base, "CartonClub")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "CartonClub")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			return filepath.Join(x, "cartonclub")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "cartonclub")
	}
}

func defaultDataDir() string {
	if runtime.GOOS == "linux" {
		if x := os.Getenv("XDG_DATA_HOME"); x != "" {
			return filepath.Join(x, "cartonclub")
		}
		if h := os.Getenv("HOME"); h != "" {
			return filepath.Join(h, ".local", "share", "cartonclub")
		}
	}
	return filepath.Join(appDir(), "data")
}

// ConfigPath returns the per-user config file path. CC_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	dir := appDir()
	if dir == "" || dir == "cartonclub" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. A .env file in the working directory is loaded first
// without replacing variables that are already set. The Drive API key comes
// from CC_DRIVE_API_KEY or the keychain and is returned separately.
func Load() (AppConfig, string, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, rerr := os.ReadFile(path); rerr == nil {
		var fileCfg AppConfig
		if uerr := yaml.Unmarshal(data, &fileCfg); uerr != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, uerr)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)

	key := strings.TrimSpace(os.Getenv(EnvDriveAPIKey))
	if key == "" {
		key, _ = tokenStore.Get(keyringService, keyringAPIKey)
	}
	return cfg, key, nil
}

// Save writes the user config YAML and stores the API key in the keychain (if non-empty).
func Save(cfg AppConfig, apiKey string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if apiKey != "" {
		if err := tokenStore.Set(keyringService, keyringAPIKey, apiKey); err != nil {
			return fmt.Errorf("store api key: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	setString(&dst.General.DataDir, src.General.DataDir)
	setString(&dst.General.FoldersFile, src.General.FoldersFile)
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn

	if b := strings.ToLower(strings.TrimSpace(src.Storage.Backend)); b != "" {
		dst.Storage.Backend = b
	}
	setString(&dst.Storage.PostgresDSN, src.Storage.PostgresDSN)
	setString(&dst.Storage.RedisURL, src.Storage.RedisURL)
	if src.Storage.KeepHistory != 0 {
		dst.Storage.KeepHistory = src.Storage.KeepHistory
	}

	setString(&dst.Drive.BaseURL, src.Drive.BaseURL)
	if src.Drive.TimeoutMs > 0 {
		dst.Drive.TimeoutMs = src.Drive.TimeoutMs
	}
	if src.Drive.RequestsPerSec > 0 {
		dst.Drive.RequestsPerSec = src.Drive.RequestsPerSec
	}
	if src.Drive.MaxResults > 0 {
		dst.Drive.MaxResults = src.Drive.MaxResults
	}
	setString(&dst.Drive.Game, src.Drive.Game)
	if len(src.Drive.Folders) > 0 {
		dst.Drive.Folders = append([]string(nil), src.Drive.Folders...)
	}

	if h := strings.ToLower(strings.TrimSpace(src.Print.Host)); h != "" {
		dst.Print.Host = h
	}
	setString(&dst.Print.OutDir, src.Print.OutDir)
	if src.Print.ImageTimeoutMs > 0 {
		dst.Print.ImageTimeoutMs = src.Print.ImageTimeoutMs
	}
	if src.Print.GraceMs > 0 {
		dst.Print.GraceMs = src.Print.GraceMs
	}
	setString(&dst.Print.LandmarksURL, src.Print.LandmarksURL)
	setString(&dst.Print.ChromeBin, src.Print.ChromeBin)

	setString(&dst.Server.Addr, src.Server.Addr)

	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setString(&dst.Logging.File, src.Logging.File)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str(EnvDataDir, &cfg.General.DataDir)
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorage)); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	str(EnvPostgresDSN, &cfg.Storage.PostgresDSN)
	str(EnvRedisURL, &cfg.Storage.RedisURL)
	str(EnvDriveURL, &cfg.Drive.BaseURL)
	num(EnvDriveTimeoutMs, &cfg.Drive.TimeoutMs)
	if v := strings.TrimSpace(os.Getenv(EnvPrintHost)); v != "" {
		cfg.Print.Host = strings.ToLower(v)
	}
	num(EnvImageTimeoutMs, &cfg.Print.ImageTimeoutMs)
	str(EnvLandmarksURL, &cfg.Print.LandmarksURL)
	str(EnvChromeBin, &cfg.Print.ChromeBin)
	str(EnvServerAddr, &cfg.Server.Addr)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	str(EnvLogFile, &cfg.Logging.File)
}

var envKeys = map[string]string{
	"general.data_dir":         EnvDataDir,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"storage.backend":          EnvStorage,
	"storage.postgres_dsn":     EnvPostgresDSN,
	"storage.redis_url":        EnvRedisURL,
	"drive.base_url":           EnvDriveURL,
	"drive.timeout_ms":         EnvDriveTimeoutMs,
	"print.host":               EnvPrintHost,
	"print.image_timeout_ms":   EnvImageTimeoutMs,
	"print.landmarks_url":      EnvLandmarksURL,
	"print.chrome_bin":         EnvChromeBin,
	"server.addr":              EnvServerAddr,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Paths derived from the data directory.
func (c AppConfig) CollectionsFile() string { return filepath.Join(c.General.DataDir, "collections.json") }
func (c AppConfig) SQLitePath() string      { return filepath.Join(c.General.DataDir, "cartonclub.sqlite") }
func (c AppConfig) ImageCacheDir() string   { return filepath.Join(c.General.DataDir, "images") }

// ExportDir is where exports and PDFs land when print.out_dir is unset.
func (c AppConfig) ExportDir() string {
	if c.Print.OutDir != "" {
		return c.Print.OutDir
	}
	return filepath.Join(c.General.DataDir, "exports")
}

// Timeout returns the Drive request timeout, falling back to the default.
func (d DriveConfig) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return time.Duration(Defaults().Drive.TimeoutMs) * time.Millisecond
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ImageTimeout bounds the wait for card images before printing.
func (p PrintConfig) ImageTimeout() time.Duration {
	if p.ImageTimeoutMs <= 0 {
		return time.Duration(Defaults().Print.ImageTimeoutMs) * time.Millisecond
	}
	return time.Duration(p.ImageTimeoutMs) * time.Millisecond
}

// Grace is the delay before a staged print document is disposed.
func (p PrintConfig) Grace() time.Duration {
	if p.GraceMs <= 0 {
		return time.Duration(Defaults().Print.GraceMs) * time.Millisecond
	}
	return time.Duration(p.GraceMs) * time.Millisecond
}
