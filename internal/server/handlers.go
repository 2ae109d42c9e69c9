/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cartonclub/internal/collection"
	"cartonclub/internal/domain"
	"cartonclub/internal/drive"
	"cartonclub/internal/exchange"
	"cartonclub/internal/layout"
	"cartonclub/internal/printer"
	"cartonclub/internal/render"
	"cartonclub/internal/version"
)

var (
	errNoFocus     = errors.New("no collection is focused")
	errUnavailable = errors.New("service not configured")
)

type collectionView struct {
	domain.Collection
	Cards   int  `json:"cards"`
	Pages   int  `json:"pages"`
	Focused bool `json:"focused"`
}

type printView struct {
	Title        string `json:"title"`
	Output       string `json:"output"`
	Pages        int    `json:"pages"`
	Images       int    `json:"images"`
	FailedImages int    `json:"failedImages"`
	ElapsedMs    int64  `json:"elapsedMs"`
}

type importView struct {
	File         string `json:"file"`
	Mode         string `json:"mode"`
	Entries      int    `json:"entries"`
	Cards        int    `json:"cards"`
	CollectionID string `json:"collectionId"`
}

func (s *Server) view(c domain.Collection) collectionView {
	focused, ok := s.store.Focused()
	return collectionView{
		Collection: c,
		Cards:      c.CardCount(),
		Pages:      layout.PageCount(c.Content, layout.CardsPerPage),
		Focused:    ok && focused.ID == c.ID,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]string{"version": version.String()})
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	cs := s.store.Collections()
	out := make([]collectionView, 0, len(cs))
	for _, c := range cs {
		out = append(out, s.view(c))
	}
	s.ok(w, out)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.CreateCollection(r.Context())
	if err != nil {
		internal(w, err)
		return
	}
	s.created(w, s.view(c))
}

func (s *Server) focusedCollection(w http.ResponseWriter, _ *http.Request) {
	c, ok := s.store.Focused()
	if !ok {
		notFound(w, errNoFocus)
		return
	}
	s.ok(w, s.view(c))
}

func (s *Server) focusCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.store.FocusCollection(r.Context(), req.ID); err != nil {
		internal(w, err)
		return
	}
	c, ok := s.store.Focused()
	if !ok {
		s.ok(w, nil)
		return
	}
	s.ok(w, s.view(c))
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		notFound(w, errors.New("collection not found"))
		return
	}
	s.ok(w, s.view(c))
}

func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.store.Get(id); !ok {
		notFound(w, errors.New("collection not found"))
		return
	}
	var c domain.Collection
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		badRequest(w, fmt.Errorf("invalid collection: %w", err))
		return
	}
	for _, e := range c.Content {
		if e.ID == "" || e.Quantity < 1 || e.Quantity > domain.MaxQuantity {
			badRequest(w, fmt.Errorf("every entry needs an id and a quantity between 1 and %d", domain.MaxQuantity))
			return
		}
	}
	c.ID = id
	if err := s.store.UpdateCollection(r.Context(), c); err != nil {
		if errors.Is(err, collection.ErrDuplicateCard) {
			badRequest(w, err)
			return
		}
		internal(w, err)
		return
	}
	updated, _ := s.store.Get(id)
	s.ok(w, s.view(updated))
}

func (s *Server) renameCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if _, ok := s.store.Get(id); !ok {
		notFound(w, errors.New("collection not found"))
		return
	}
	if err := s.store.RenameCollection(r.Context(), id, req.Name); err != nil {
		internal(w, err)
		return
	}
	c, _ := s.store.Get(id)
	s.ok(w, s.view(c))
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
		internal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addCard(w http.ResponseWriter, r *http.Request) {
	var ref domain.CardRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		badRequest(w, fmt.Errorf("invalid card: %w", err))
		return
	}
	if ref.ID == "" {
		badRequest(w, errors.New("card id is required"))
		return
	}
	e, err := s.store.AddCard(r.Context(), ref)
	if err != nil {
		internal(w, err)
		return
	}
	s.created(w, e)
}

func (s *Server) removeCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cardID")
	if err := s.store.RemoveCard(r.Context(), id); err != nil {
		internal(w, err)
		return
	}
	s.ok(w, map[string]any{"id": id, "quantity": s.store.CardQuantity(id)})
}

func (s *Server) cardQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cardID")
	s.ok(w, map[string]any{"id": id, "quantity": s.store.CardQuantity(id)})
}

func (s *Server) gameParam(r *http.Request) (domain.Game, error) {
	raw := r.URL.Query().Get("game")
	if raw == "" {
		return s.cfg.DefaultGame, nil
	}
	g, ok := domain.ParseGame(raw)
	if !ok {
		return "", fmt.Errorf("unknown game %q", raw)
	}
	return g, nil
}

func (s *Server) searchFiles(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		fail(w, http.StatusServiceUnavailable, fmt.Errorf("search: %w", errUnavailable))
		return
	}
	q := r.URL.Query()
	game, err := s.gameParam(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	var defaults []string
	if s.folders != nil {
		defaults = s.folders.IDs(game)
	}
	opts := drive.SearchOptions{
		Name:       q.Get("name"),
		FolderIDs:  drive.ParseFolderIDs(q.Get("foldersIds"), defaults),
		ImagesOnly: q.Get("images") != "0" && q.Get("images") != "false",
	}
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, fmt.Errorf("invalid max %q", v))
			return
		}
		opts.MaxResults = n
	}
	res, err := s.search.Search(r.Context(), opts)
	switch {
	case errors.Is(err, drive.ErrMissingName):
		badRequest(w, err)
	case errors.Is(err, drive.ErrRateLimited):
		fail(w, http.StatusTooManyRequests, err)
	case errors.Is(err, drive.ErrUnauthorized):
		fail(w, http.StatusBadGateway, err)
	case err != nil:
		internal(w, err)
	default:
		s.ok(w, res)
	}
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	if s.folders == nil {
		s.ok(w, []domain.Folder{})
		return
	}
	if r.URL.Query().Get("game") == "" {
		out := map[domain.Game][]domain.Folder{}
		for _, g := range domain.Games() {
			out[g] = s.folders.ByGame(g)
		}
		s.ok(w, out)
		return
	}
	game, err := s.gameParam(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	s.ok(w, s.folders.ByGame(game))
}

// focusedPages paginates the focused collection; page selects a single
// 1-based page when > 0.
func (s *Server) focusedPages(page int) (domain.Collection, []domain.Page, error) {
	c, ok := s.store.Focused()
	if !ok {
		return c, nil, errNoFocus
	}
	pages, err := layout.Paginate(c.Content, layout.CardsPerPage)
	if err != nil {
		return c, nil, err
	}
	if page > 0 {
		if page > len(pages) {
			return c, nil, fmt.Errorf("page %d out of range (1-%d)", page, len(pages))
		}
		pages = pages[page-1 : page]
	}
	return c, pages, nil
}

func pageParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("page")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page %q", v)
	}
	return n, nil
}

func (s *Server) listPages(w http.ResponseWriter, _ *http.Request) {
	_, pages, err := s.focusedPages(0)
	if errors.Is(err, errNoFocus) {
		s.ok(w, []domain.Page{})
		return
	}
	if err != nil {
		internal(w, err)
		return
	}
	s.ok(w, pages)
}

func (s *Server) pagesFor(w http.ResponseWriter, r *http.Request) (domain.Collection, []domain.Page, int, bool) {
	page, err := pageParam(r)
	if err != nil {
		badRequest(w, err)
		return domain.Collection{}, nil, 0, false
	}
	c, pages, err := s.focusedPages(page)
	switch {
	case errors.Is(err, errNoFocus):
		notFound(w, err)
		return c, nil, 0, false
	case err != nil:
		badRequest(w, err)
		return c, nil, 0, false
	case len(pages) == 0:
		badRequest(w, printer.ErrNoPages)
		return c, nil, 0, false
	}
	return c, pages, page, true
}

func (s *Server) printDocument(w http.ResponseWriter, r *http.Request) {
	c, pages, page, ok := s.pagesFor(w, r)
	if !ok {
		return
	}
	title := render.AllPagesTitle(c.Name)
	if page > 0 {
		title = render.PageTitle(page, c.Name)
	}
	doc, err := s.renderer.Render(r.Context(), pages, title)
	if err != nil {
		internal(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.HTML))
}

func (s *Server) print(w http.ResponseWriter, r *http.Request) {
	if s.printer == nil {
		fail(w, http.StatusServiceUnavailable, fmt.Errorf("print: %w", errUnavailable))
		return
	}
	c, pages, page, ok := s.pagesFor(w, r)
	if !ok {
		return
	}
	var (
		res printer.Result
		err error
	)
	if page > 0 {
		res, err = s.printer.PrintPage(r.Context(), pages[0], c.Name)
	} else {
		res, err = s.printer.PrintAll(r.Context(), pages, c.Name)
	}
	if err != nil {
		internal(w, err)
		return
	}
	s.ok(w, printView{
		Title:        res.Title,
		Output:       res.Output,
		Pages:        res.Pages,
		Images:       res.Images,
		FailedImages: res.FailedImages,
		ElapsedMs:    res.Elapsed.Milliseconds(),
	})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		fail(w, http.StatusServiceUnavailable, fmt.Errorf("exchange: %w", errUnavailable))
		return
	}
	var sink exchange.BufferSink
	name, err := s.exchange.Export(r.Context(), &sink)
	if errors.Is(err, exchange.ErrNothingToExport) {
		s.drainNotices()
		notFound(w, err)
		return
	}
	if err != nil {
		internal(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sink.Data)
}

func (s *Server) importCollection(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		fail(w, http.StatusServiceUnavailable, fmt.Errorf("exchange: %w", errUnavailable))
		return
	}
	mode := exchange.ModeMerge
	switch strings.ToLower(r.URL.Query().Get("mode")) {
	case "", "merge":
	case "replace":
		mode = exchange.ModeReplace
	default:
		badRequest(w, fmt.Errorf("unknown import mode %q", r.URL.Query().Get("mode")))
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.json"
	}
	res, err := s.exchange.Import(r.Context(), exchange.ReaderSource{Name: name, R: r.Body}, mode)
	if errors.Is(err, exchange.ErrMalformed) {
		s.drainNotices()
		badRequest(w, err)
		return
	}
	if err != nil {
		internal(w, err)
		return
	}
	s.ok(w, importView{
		File:         res.File,
		Mode:         res.Mode.String(),
		Entries:      res.Entries,
		Cards:        res.Cards,
		CollectionID: res.CollectionID,
	})
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	if s.images == nil || s.mediaURL == nil {
		fail(w, http.StatusServiceUnavailable, fmt.Errorf("images: %w", errUnavailable))
		return
	}
	f, err := s.images.Open(r.Context(), s.mediaURL(chi.URLParam(r, "id")))
	if err != nil {
		fail(w, http.StatusBadGateway, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		internal(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, "", st.ModTime(), f)
}
