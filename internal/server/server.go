/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the collection, search and print operations as a
// local JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cartonclub/internal/collection"
	"cartonclub/internal/domain"
	"cartonclub/internal/drive"
	"cartonclub/internal/exchange"
	"cartonclub/internal/folders"
	applog "cartonclub/internal/log"
	"cartonclub/internal/notify"
	"cartonclub/internal/printer"
	"cartonclub/internal/render"
)

// Searcher finds card images.
type Searcher interface {
	Search(ctx context.Context, o drive.SearchOptions) (drive.SearchResult, error)
}

// ImageStore opens the local copy of a remote image URL.
type ImageStore interface {
	Open(ctx context.Context, imageURL string) (*os.File, error)
}

// Config holds listener and default settings.
type Config struct {
	Addr        string
	DefaultGame domain.Game
}

// Deps are the services the API is built on. Search, Images and Printer
// may be nil; their routes then answer 503.
type Deps struct {
	Store    *collection.Store
	Folders  *folders.Table
	Search   Searcher
	Images   ImageStore
	MediaURL func(fileID string) string
	Renderer *render.Renderer
	Printer  *printer.Driver
	Exchange *exchange.Exchanger
	Notices  *notify.Recorder
}

// Server is the HTTP API.
type Server struct {
	cfg      Config
	router   *chi.Mux
	store    *collection.Store
	folders  *folders.Table
	search   Searcher
	images   ImageStore
	mediaURL func(string) string
	renderer *render.Renderer
	printer  *printer.Driver
	exchange *exchange.Exchanger
	notices  *notify.Recorder
	log      *slog.Logger
}

func New(cfg Config, d Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.DefaultGame == "" {
		cfg.DefaultGame = domain.GameOPTCG
	}
	if d.Renderer == nil {
		d.Renderer = render.New(nil)
	}
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		store:    d.Store,
		folders:  d.Folders,
		search:   d.Search,
		images:   d.Images,
		mediaURL: d.MediaURL,
		renderer: d.Renderer,
		printer:  d.Printer,
		exchange: d.Exchange,
		notices:  d.Notices,
		log:      applog.WithComponent("server"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(2 * time.Minute))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("api stopped")
	return nil
}
