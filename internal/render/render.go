/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render turns paginated cards into a self-contained, printable
// HTML document with one A4 page per grid page and a cutting-guide overlay.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"cartonclub/internal/domain"
	"cartonclub/internal/layout"
	applog "cartonclub/internal/log"
)

// Document is a rendered print job. HTML is what a browser host prints;
// the remaining fields serve hosts that draw the pages themselves.
type Document struct {
	Title string
	HTML  string
	Pages []domain.Page
	// Landmarks holds the raw SVG of every overlay used, keyed by file name.
	Landmarks map[string][]byte
	// ImageURLs lists each distinct card image once, in page order.
	ImageURLs []string
}

// LandmarkFor returns the overlay SVG for page p.
func (d *Document) LandmarkFor(p domain.Page) []byte {
	return d.Landmarks[LandmarkFile(p.Bleed)]
}

// Renderer builds Documents. It is safe for concurrent use.
type Renderer struct {
	landmarks LandmarkSource
	log       *slog.Logger
}

// New returns a Renderer; a nil source uses the embedded guides.
func New(src LandmarkSource) *Renderer {
	if src == nil {
		src = EmbeddedLandmarks{}
	}
	return &Renderer{landmarks: src, log: applog.WithComponent("render")}
}

type slotView struct {
	Empty    bool
	ImageURL string
	Alt      string
	Label    string
}

type pageView struct {
	Number    int
	Slots     []slotView
	Landmarks template.HTML
}

type docView struct {
	Title string
	Style template.CSS
	Pages []pageView
}

// Render builds the print document for pages. Every landmark asset must
// resolve; a missing one fails the whole render with ErrLandmark.
func (r *Renderer) Render(ctx context.Context, pages []domain.Page, title string) (*Document, error) {
	l := applog.WithOperation(r.log, "render")
	doc := &Document{
		Title:     title,
		Pages:     pages,
		Landmarks: map[string][]byte{},
	}
	seen := map[string]bool{}
	view := docView{Title: title, Style: template.CSS(stylesheet)}
	for _, p := range pages {
		name := LandmarkFile(p.Bleed)
		svg, ok := doc.Landmarks[name]
		if !ok {
			b, err := r.landmarks.Landmark(ctx, name)
			if err != nil {
				l.Error("landmark lookup failed", slog.String("file", name), slog.Any("err", err))
				if !errors.Is(err, ErrLandmark) {
					err = fmt.Errorf("%w: %s: %v", ErrLandmark, name, err)
				}
				return nil, err
			}
			doc.Landmarks[name] = b
			svg = b
		}
		pv := pageView{Number: p.Number, Landmarks: inlineSVG(svg)}
		for _, c := range p.Cards {
			pv.Slots = append(pv.Slots, cardSlot(c))
			if c.ImageURL != "" && !seen[c.ImageURL] {
				seen[c.ImageURL] = true
				doc.ImageURLs = append(doc.ImageURLs, c.ImageURL)
			}
		}
		for len(pv.Slots) < layout.CardsPerPage {
			pv.Slots = append(pv.Slots, slotView{Empty: true})
		}
		view.Pages = append(view.Pages, pv)
	}
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	doc.HTML = buf.String()
	l.Debug("document rendered", slog.Int("pages", len(pages)), slog.Int("images", len(doc.ImageURLs)))
	return doc, nil
}

func cardSlot(c domain.PrintCard) slotView {
	if c.ImageURL == "" {
		label := c.Name
		if label == "" {
			label = "No image"
		}
		return slotView{Label: label}
	}
	alt := c.Name
	if alt == "" {
		alt = "Card image"
	}
	return slotView{ImageURL: c.ImageURL, Alt: alt}
}

// inlineSVG drops any XML prolog so the asset can sit inside HTML.
func inlineSVG(b []byte) template.HTML {
	s := string(b)
	if i := strings.Index(s, "<svg"); i > 0 {
		s = s[i:]
	}
	return template.HTML(s) //nolint:gosec // assets are trusted
}

// AllPagesTitle is the document title for a whole-collection print.
func AllPagesTitle(name string) string {
	if name == "" {
		name = "Planches"
	}
	return "Carton Club - " + name
}

// PageTitle is the document title for a single-page print.
func PageTitle(n int, name string) string {
	if name == "" {
		name = "Planche"
	}
	return fmt.Sprintf("Sheet Page %d - %s", n, name)
}

// AllPagesFile is the output file name for a whole-collection print.
func AllPagesFile(name string) string {
	return fileStem(name) + "-all-pages.pdf"
}

// PageFile is the output file name for a single-page print.
func PageFile(n int, name string) string {
	return fmt.Sprintf("%s-page-%d.pdf", fileStem(name), n)
}

func fileStem(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "sheet"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
}
