/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cartonclub/internal/collection"
	"cartonclub/internal/config"
	"cartonclub/internal/domain"
	"cartonclub/internal/drive"
	"cartonclub/internal/exchange"
	"cartonclub/internal/folders"
	"cartonclub/internal/imagecache"
	applog "cartonclub/internal/log"
	"cartonclub/internal/notify"
	"cartonclub/internal/printer"
	"cartonclub/internal/render"
	"cartonclub/internal/storage"
	"cartonclub/internal/telemetry"
)

// session owns the services of one command invocation. Everything is built
// on first use so that commands like version or config never touch storage.
type session struct {
	cfg    config.AppConfig
	apiKey string
	cfgErr error
	log    *slog.Logger

	notices notify.Notifier
	kv      storage.KV
	table   *folders.Table
	store   *collection.Store
	images  *imagecache.Cache
	tel     *telemetry.Client
	closers []func() error
}

func newSession(cfg config.AppConfig, apiKey string, cfgErr error) *session {
	return &session{
		cfg:     cfg,
		apiKey:  apiKey,
		cfgErr:  cfgErr,
		log:     applog.WithComponent("cli"),
		notices: notify.Discard,
	}
}

// Collections lets a crash autosave whatever was loaded.
func (s *session) Collections() []domain.Collection {
	if s.store == nil {
		return nil
	}
	return s.store.Collections()
}

func (s *session) setOutput(w io.Writer) { s.notices = notify.NewConsole(w) }

func (s *session) Close() {
	if s.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		s.tel.Flush(ctx)
		cancel()
		s.tel.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", slog.Any("err", err))
		}
	}
	s.closers = nil
}

func (s *session) folders() (*folders.Table, error) {
	if s.table != nil {
		return s.table, nil
	}
	t, err := folders.Load(s.cfg.General.FoldersFile)
	if err != nil {
		return nil, fmt.Errorf("load folder table: %w", err)
	}
	s.table = t
	return t, nil
}

func (s *session) collections(ctx context.Context) (*collection.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	if s.cfgErr != nil {
		return nil, s.cfgErr
	}
	table, err := s.folders()
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(ctx, storage.Options{
		Backend:     s.cfg.Storage.Backend,
		Dir:         s.cfg.General.DataDir,
		SQLitePath:  s.cfg.SQLitePath(),
		PostgresDSN: s.cfg.Storage.PostgresDSN,
		RedisURL:    s.cfg.Storage.RedisURL,
		Keep:        s.cfg.Storage.KeepHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.kv = kv
	s.closers = append(s.closers, kv.Close)

	store := collection.New(kv, table, collection.WithNotifier(s.notices))
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	s.store = store
	return store, nil
}

func (s *session) historian() (storage.Historian, error) {
	h, ok := s.kv.(storage.Historian)
	if !ok {
		return nil, fmt.Errorf("storage backend %q keeps no history", s.cfg.Storage.Backend)
	}
	return h, nil
}

func (s *session) drive() (*drive.Client, error) {
	if s.apiKey == "" {
		return nil, errors.New("no Drive API key configured; run 'cartonclub config set-key'")
	}
	return drive.New(drive.Options{
		BaseURL:        s.cfg.Drive.BaseURL,
		APIKey:         s.apiKey,
		Timeout:        s.cfg.Drive.Timeout(),
		RequestsPerSec: s.cfg.Drive.RequestsPerSec,
		MaxResults:     s.cfg.Drive.MaxResults,
	}), nil
}

// defaultFolders is the search scope when none is given: the configured
// folders, else every known folder of game.
func (s *session) defaultFolders(game domain.Game) ([]string, error) {
	if len(s.cfg.Drive.Folders) > 0 {
		return s.cfg.Drive.Folders, nil
	}
	t, err := s.folders()
	if err != nil {
		return nil, err
	}
	return t.IDs(game), nil
}

func (s *session) game(flag string) (domain.Game, error) {
	raw := flag
	if raw == "" {
		raw = s.cfg.Drive.Game
	}
	g, ok := domain.ParseGame(raw)
	if !ok {
		return "", fmt.Errorf("unknown game %q", raw)
	}
	return g, nil
}

func (s *session) imageCache() (*imagecache.Cache, error) {
	if s.images != nil {
		return s.images, nil
	}
	c, err := imagecache.New(imagecache.DefaultOptions(s.cfg.ImageCacheDir()))
	if err != nil {
		return nil, err
	}
	s.images = c
	return c, nil
}

func (s *session) renderer() *render.Renderer {
	if s.cfg.Print.LandmarksURL != "" {
		return render.New(render.HTTPLandmarks{BaseURL: s.cfg.Print.LandmarksURL})
	}
	return render.New(nil)
}

// printer builds a driver for hostName (the configured host when empty).
// Call Wait on the driver before exiting so staged documents are disposed.
func (s *session) printer(hostName, outDir string) (*printer.Driver, string, error) {
	if hostName == "" {
		hostName = s.cfg.Print.Host
	}
	if outDir == "" {
		outDir = s.cfg.ExportDir()
	}
	var host printer.Host
	switch hostName {
	case "", "pdf":
		images, err := s.imageCache()
		if err != nil {
			return nil, "", err
		}
		host = printer.NewPDFHost(outDir, images)
	case "browser":
		b := printer.NewBrowserHost(outDir, s.cfg.Print.ChromeBin)
		s.closers = append(s.closers, b.Close)
		host = b
	default:
		return nil, "", fmt.Errorf("unknown print host %q (want pdf or browser)", hostName)
	}
	d := printer.NewDriver(s.renderer(), host,
		printer.WithNotifier(s.notices),
		printer.WithImageTimeout(s.cfg.Print.ImageTimeout()),
		printer.WithGrace(s.cfg.Print.Grace()),
	)
	return d, host.Name(), nil
}

func (s *session) exchanger(ctx context.Context) (*exchange.Exchanger, error) {
	store, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	return exchange.New(store, exchange.WithNotifier(s.notices))
}

func (s *session) telemetry() *telemetry.Client {
	if s.tel != nil {
		return s.tel
	}
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || s.cfg.General.TelemetryOptIn
	s.tel = telemetry.New(tc)
	telemetry.SetDefault(s.tel)
	return s.tel
}
