/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package printer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/sync/errgroup"

	"cartonclub/internal/imagecache"
	"cartonclub/internal/layout"
	applog "cartonclub/internal/log"
	"cartonclub/internal/render"
)

// ImageSource supplies print-ready card images.
type ImageSource interface {
	ForPrint(ctx context.Context, imageURL string, maxW, maxH int) (imagecache.PrintImage, error)
}

// PDFHost draws documents natively with gofpdf, one A4 page per grid page.
//
// Coordinates are millimetres from the top-left corner. Card images are
// scaled to cover their 63x88 slot and clipped to it; the landmark overlay is
// drawn last, on top of the cards.
type PDFHost struct {
	OutDir string
	Images ImageSource
	// Fetches is the number of concurrent image downloads (default 6).
	Fetches int
	log     *slog.Logger
}

func NewPDFHost(outDir string, images ImageSource) *PDFHost {
	return &PDFHost{OutDir: outDir, Images: images, Fetches: 6, log: applog.WithComponent("printer.pdf")}
}

type pdfJob struct {
	doc  *render.Document
	file string

	mu     sync.Mutex
	images map[string]imagecache.PrintImage
}

func (j *pdfJob) FileName() string { return j.file }

func (j *pdfJob) image(u string) (imagecache.PrintImage, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	img, ok := j.images[u]
	return img, ok
}

func (p *PDFHost) Name() string { return "pdf" }

func (p *PDFHost) Stage(_ context.Context, doc *render.Document, fileName string) (Handle, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if err := os.MkdirAll(p.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	return &pdfJob{doc: doc, file: fileName, images: map[string]imagecache.PrintImage{}}, nil
}

// WaitReady fetches every distinct image. A failed or timed-out fetch only
// counts as a failure; the error is ctx's once it has expired.
func (p *PDFHost) WaitReady(ctx context.Context, h Handle) (Readiness, error) {
	job, ok := h.(*pdfJob)
	if !ok {
		return Readiness{}, fmt.Errorf("foreign handle %T", h)
	}
	urls := job.doc.ImageURLs
	rd := Readiness{Images: len(urls)}
	if p.Images == nil {
		rd.Failed = len(urls)
		return rd, nil
	}
	l := p.logger()
	maxW, maxH := imagecache.MaxPixels(layout.CardWidthMM, layout.CardHeightMM)
	var failed int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Fetches))
	for _, u := range urls {
		g.Go(func() error {
			img, err := p.Images.ForPrint(gctx, u, maxW, maxH)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				l.Warn("image unavailable", slog.String("url", u), slog.Any("err", err))
				return nil
			}
			job.mu.Lock()
			job.images[u] = img
			job.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	rd.Failed = failed
	return rd, ctx.Err()
}

func (p *PDFHost) Trigger(_ context.Context, h Handle) (string, error) {
	job, ok := h.(*pdfJob)
	if !ok {
		return "", fmt.Errorf("foreign handle %T", h)
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(job.doc.Title, true)
	pdf.SetAuthor("Carton Club", true)
	pdf.SetCreator("cartonclub", true)
	pdf.SetCreationDate(time.Now())
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCellMargin(1)
	pdf.SetFont("Helvetica", "", 8)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range job.doc.Pages {
		pdf.AddPage()
		for i := 0; i < layout.CardsPerPage; i++ {
			x, y := layout.CellOrigin(i)
			if i >= len(page.Cards) {
				pdf.SetDrawColor(0xf3, 0xf4, 0xf6)
				pdf.SetLineWidth(0.2)
				pdf.Rect(x, y, layout.CardWidthMM, layout.CardHeightMM, "D")
				continue
			}
			card := page.Cards[i]
			if img, ok := job.image(card.ImageURL); ok && card.ImageURL != "" {
				drawCover(pdf, imageName(card.ImageURL), img, x, y)
				continue
			}
			label := card.Name
			if label == "" {
				label = "No image"
			}
			drawPlaceholder(pdf, tr(label), x, y)
		}
		if err := drawLandmarks(pdf, job.doc.LandmarkFor(page)); err != nil {
			return "", err
		}
		if pdf.Err() {
			return "", fmt.Errorf("draw page %d: %w", page.Number, pdf.Error())
		}
	}

	out := filepath.Join(p.OutDir, job.file)
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return out, nil
}

func (p *PDFHost) Dispose(h Handle) error {
	if job, ok := h.(*pdfJob); ok {
		job.mu.Lock()
		job.images = nil
		job.mu.Unlock()
	}
	return nil
}

func (p *PDFHost) logger() *slog.Logger {
	if p.log == nil {
		p.log = applog.WithComponent("printer.pdf")
	}
	return p.log
}

func imageName(u string) string {
	h := sha1.Sum([]byte(u))
	return hex.EncodeToString(h[:])
}

// drawCover scales img to cover the slot at (x, y) and clips the overflow.
func drawCover(pdf *gofpdf.Fpdf, name string, img imagecache.PrintImage, x, y float64) {
	opts := gofpdf.ImageOptions{ImageType: img.Type}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	w, h := layout.CardWidthMM, layout.CardHeightMM
	if img.Width > 0 && img.Height > 0 {
		scale := max(layout.CardWidthMM/float64(img.Width), layout.CardHeightMM/float64(img.Height))
		w, h = float64(img.Width)*scale, float64(img.Height)*scale
	}
	pdf.ClipRect(x, y, layout.CardWidthMM, layout.CardHeightMM, false)
	pdf.ImageOptions(name, x+(layout.CardWidthMM-w)/2, y+(layout.CardHeightMM-h)/2, w, h, false, opts, 0, "")
	pdf.ClipEnd()
}

func drawPlaceholder(pdf *gofpdf.Fpdf, label string, x, y float64) {
	pdf.SetFillColor(0xf3, 0xf4, 0xf6)
	pdf.SetDrawColor(0xe5, 0xe7, 0xeb)
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, layout.CardWidthMM, layout.CardHeightMM, "FD")
	pdf.SetTextColor(0x6b, 0x72, 0x80)
	const pad, lineH = 3.0, 4.0
	lines := pdf.SplitLines([]byte(label), layout.CardWidthMM-2*pad)
	top := y + (layout.CardHeightMM-float64(len(lines))*lineH)/2
	for i, ln := range lines {
		pdf.SetXY(x+pad, top+float64(i)*lineH)
		pdf.CellFormat(layout.CardWidthMM-2*pad, lineH, string(ln), "", 0, "C", false, 0, "")
	}
}

func drawLandmarks(pdf *gofpdf.Fpdf, svg []byte) error {
	sig, err := gofpdf.SVGBasicParse(svg)
	if err != nil {
		return fmt.Errorf("%w: %v", render.ErrLandmark, err)
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.SetXY(0, 0)
	pdf.SVGBasicWrite(&sig, layout.PageWidthMM/sig.Wd)
	return nil
}
