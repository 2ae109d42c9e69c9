/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package printer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	applog "cartonclub/internal/log"
	"cartonclub/internal/render"
)

// waitImagesJS resolves once every image has either loaded or failed.
const waitImagesJS = `() => Promise.all(Array.from(document.images).map(img => img.complete
	? Promise.resolve(img.naturalWidth > 0)
	: new Promise(resolve => {
		img.addEventListener('load', () => resolve(true), { once: true });
		img.addEventListener('error', () => resolve(false), { once: true });
	}))).then(r => ({ images: r.length, failed: r.filter(ok => !ok).length }))`

// countImagesJS is a snapshot used after a timeout: pending images are failures.
const countImagesJS = `() => {
	const imgs = Array.from(document.images);
	return { images: imgs.length, failed: imgs.filter(i => !i.complete || i.naturalWidth === 0).length };
}`

// BrowserHost prints through an off-screen headless Chrome page. The
// browser is launched on first use and shared by later jobs.
type BrowserHost struct {
	OutDir string
	// ChromeBin selects the browser binary; empty lets rod find or fetch one.
	ChromeBin string
	// ControlURL attaches to an already running browser instead.
	ControlURL string

	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
	log     *slog.Logger
}

func NewBrowserHost(outDir, chromeBin string) *BrowserHost {
	return &BrowserHost{OutDir: outDir, ChromeBin: chromeBin, log: applog.WithComponent("printer.browser")}
}

type browserJob struct {
	page *rod.Page
	file string
}

func (j *browserJob) FileName() string { return j.file }

func (b *BrowserHost) Name() string { return "browser" }

func (b *BrowserHost) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	controlURL := b.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if b.ChromeBin != "" {
			l = l.Bin(b.ChromeBin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		b.launch = l
		controlURL = u
	}
	br := rod.New().ControlURL(controlURL)
	if err := br.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = br
	if b.log != nil {
		b.log.Debug("browser connected", slog.String("control_url", controlURL))
	}
	return br, nil
}

func (b *BrowserHost) Stage(ctx context.Context, doc *render.Document, fileName string) (Handle, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if err := os.MkdirAll(b.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	br, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := br.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.Context(ctx).SetDocumentContent(doc.HTML); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("load document: %w", err)
	}
	return &browserJob{page: page, file: fileName}, nil
}

func (b *BrowserHost) WaitReady(ctx context.Context, h Handle) (Readiness, error) {
	job, ok := h.(*browserJob)
	if !ok {
		return Readiness{}, fmt.Errorf("foreign handle %T", h)
	}
	res, err := job.page.Context(ctx).Eval(waitImagesJS)
	if err == nil {
		return Readiness{Images: res.Value.Get("images").Int(), Failed: res.Value.Get("failed").Int()}, nil
	}
	if ctx.Err() == nil {
		return Readiness{}, fmt.Errorf("wait for images: %w", err)
	}
	snap, serr := job.page.Timeout(5 * time.Second).Eval(countImagesJS)
	if serr != nil {
		return Readiness{}, ctx.Err()
	}
	return Readiness{Images: snap.Value.Get("images").Int(), Failed: snap.Value.Get("failed").Int()}, ctx.Err()
}

func (b *BrowserHost) Trigger(ctx context.Context, h Handle) (string, error) {
	job, ok := h.(*browserJob)
	if !ok {
		return "", fmt.Errorf("foreign handle %T", h)
	}
	zero := 0.0
	stream, err := job.page.Context(ctx).PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		MarginTop:         &zero,
		MarginBottom:      &zero,
		MarginLeft:        &zero,
		MarginRight:       &zero,
	})
	if err != nil {
		return "", fmt.Errorf("print to pdf: %w", err)
	}
	out := filepath.Join(b.OutDir, job.file)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(f, stream); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	return out, nil
}

func (b *BrowserHost) Dispose(h Handle) error {
	job, ok := h.(*browserJob)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}
	return job.page.Close()
}

// Close shuts the shared browser down.
func (b *BrowserHost) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launch != nil {
		b.launch.Kill()
		b.launch.Cleanup()
		b.launch = nil
	}
	return err
}
