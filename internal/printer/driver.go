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
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"cartonclub/internal/domain"
	applog "cartonclub/internal/log"
	"cartonclub/internal/notify"
	"cartonclub/internal/render"
)

// ErrNoPages is returned when there is nothing to print.
var ErrNoPages = errors.New("nothing to print")

// Defaults for the image wait and the host teardown delay.
const (
	DefaultImageTimeout = 60 * time.Second
	DefaultGrace        = time.Second
)

// Result summarises a finished print.
type Result struct {
	Title        string
	Output       string
	Pages        int
	Images       int
	FailedImages int
	Elapsed      time.Duration
}

// Driver runs print jobs against one Host.
type Driver struct {
	renderer     *render.Renderer
	host         Host
	notices      notify.Notifier
	imageTimeout time.Duration
	grace        time.Duration
	log          *slog.Logger
	disposals    sync.WaitGroup
}

type Option func(*Driver)

func WithNotifier(n notify.Notifier) Option { return func(d *Driver) { d.notices = n } }

// WithImageTimeout bounds the wait for images; 0 keeps the default.
func WithImageTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.imageTimeout = t
		}
	}
}

// WithGrace sets the delay between output and host teardown.
func WithGrace(g time.Duration) Option {
	return func(d *Driver) {
		if g >= 0 {
			d.grace = g
		}
	}
}

func NewDriver(r *render.Renderer, host Host, opts ...Option) *Driver {
	d := &Driver{
		renderer:     r,
		host:         host,
		notices:      notify.Discard,
		imageTimeout: DefaultImageTimeout,
		grace:        DefaultGrace,
		log:          applog.WithComponent("printer").With(slog.String("host", host.Name())),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// PrintAll prints every page of a collection as one document.
func (d *Driver) PrintAll(ctx context.Context, pages []domain.Page, name string) (Result, error) {
	return d.print(ctx, pages, render.AllPagesTitle(name), render.AllPagesFile(name))
}

// PrintPage prints a single page.
func (d *Driver) PrintPage(ctx context.Context, page domain.Page, name string) (Result, error) {
	return d.print(ctx, []domain.Page{page}, render.PageTitle(page.Number, name), render.PageFile(page.Number, name))
}

// Wait blocks until every scheduled host teardown has run.
func (d *Driver) Wait() { d.disposals.Wait() }

func (d *Driver) print(ctx context.Context, pages []domain.Page, title, file string) (res Result, err error) {
	l := applog.WithOperation(d.log, "print").With(slog.String("title", title))
	start := time.Now()
	res.Title = title
	res.Pages = len(pages)

	defer func() {
		if r := recover(); r != nil {
			l.Error("print host panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("print host %s panicked: %v", d.host.Name(), r)
		}
		if err != nil {
			notify.Failure(d.notices, "Printing failed", err)
		}
	}()

	if len(pages) == 0 {
		return res, ErrNoPages
	}
	for _, p := range pages {
		if b, mixed := otherBleed(p); mixed {
			l.Warn("page mixes bleed values", slog.Int("page", p.Number), slog.Float64("guide", p.Bleed), slog.Float64("other", b))
			notify.Warnf(d.notices, "Page %d mixes %gmm and %gmm bleed cards; it gets the %gmm cutting guide", p.Number, p.Bleed, b, p.Bleed)
		}
	}
	doc, err := d.renderer.Render(ctx, pages, title)
	if err != nil {
		return res, fmt.Errorf("render: %w", err)
	}
	h, err := d.host.Stage(ctx, doc, file)
	if err != nil {
		return res, fmt.Errorf("stage document: %w", err)
	}
	defer d.disposeLater(h, l)

	waitCtx, cancel := context.WithTimeout(ctx, d.imageTimeout)
	ready, err := d.host.WaitReady(waitCtx, h)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		l.Warn("image wait timed out", slog.Duration("timeout", d.imageTimeout), slog.Int("failed", ready.Failed))
		notify.Warnf(d.notices, "Some images did not load within %s", d.imageTimeout)
	default:
		return res, fmt.Errorf("wait for images: %w", err)
	}
	res.Images, res.FailedImages = ready.Images, ready.Failed
	if ready.Failed > 0 {
		l.Warn("images failed to load", slog.Int("failed", ready.Failed), slog.Int("images", ready.Images))
	}

	out, err := d.host.Trigger(ctx, h)
	if err != nil {
		return res, fmt.Errorf("print: %w", err)
	}
	res.Output = out
	res.Elapsed = time.Since(start)
	l.Info("printed",
		slog.String("output", out),
		slog.Int("pages", res.Pages),
		slog.Int("cards", countCards(pages)),
		slog.Int("failed_images", res.FailedImages),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// disposeLater tears the host down after the grace delay, off the caller's
// goroutine and independent of its context.
func (d *Driver) disposeLater(h Handle, l *slog.Logger) {
	d.disposals.Add(1)
	go func() {
		defer d.disposals.Done()
		defer func() {
			if r := recover(); r != nil {
				l.Error("dispose panicked", slog.Any("panic", r))
			}
		}()
		if d.grace > 0 {
			t := time.NewTimer(d.grace)
			<-t.C
		}
		if err := d.host.Dispose(h); err != nil {
			l.Warn("dispose failed", slog.Any("err", err))
		}
	}()
}

// otherBleed returns a card bleed on p that differs from the page guide.
func otherBleed(p domain.Page) (float64, bool) {
	for _, c := range p.Cards {
		if c.Bleed != p.Bleed {
			return c.Bleed, true
		}
	}
	return 0, false
}

func countCards(pages []domain.Page) int {
	n := 0
	for _, p := range pages {
		n += len(p.Cards)
	}
	return n
}
