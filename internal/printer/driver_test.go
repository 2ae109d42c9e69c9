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
	"sync"
	"testing"
	"time"

	"cartonclub/internal/domain"
	"cartonclub/internal/layout"
	"cartonclub/internal/notify"
	"cartonclub/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeJob struct{ file string }

func (j *fakeJob) FileName() string { return j.file }

type fakeHost struct {
	mu         sync.Mutex
	staged     []*render.Document
	files      []string
	disposed   int
	block      bool
	ready      Readiness
	waitErr    error
	panicOn    string
	triggerErr error
}

func (f *fakeHost) Name() string { return "fake" }

func (f *fakeHost) Stage(_ context.Context, doc *render.Document, file string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "stage" {
		panic("boom")
	}
	f.staged = append(f.staged, doc)
	f.files = append(f.files, file)
	return &fakeJob{file: file}, nil
}

func (f *fakeHost) WaitReady(ctx context.Context, _ Handle) (Readiness, error) {
	if f.block {
		<-ctx.Done()
		return f.ready, ctx.Err()
	}
	return f.ready, f.waitErr
}

func (f *fakeHost) Trigger(_ context.Context, h Handle) (string, error) {
	if f.panicOn == "trigger" {
		panic("boom")
	}
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	return "/out/" + h.FileName(), nil
}

func (f *fakeHost) Dispose(Handle) error {
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	return nil
}

func (f *fakeHost) disposals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

type brokenLandmarks struct{}

func (brokenLandmarks) Landmark(context.Context, string) ([]byte, error) {
	return nil, errors.New("404")
}

func samplePages(t *testing.T) []domain.Page {
	t.Helper()
	pages, err := layout.Paginate([]domain.Entry{
		{CardRef: domain.CardRef{ID: "a", Name: "A", ImageURL: "https://img/a"}, Quantity: 10},
	}, layout.CardsPerPage)
	require.NoError(t, err)
	return pages
}

func newDriver(host Host, rec *notify.Recorder, opts ...Option) *Driver {
	opts = append([]Option{WithNotifier(rec), WithGrace(5 * time.Millisecond)}, opts...)
	return NewDriver(render.New(nil), host, opts...)
}

func TestPrintAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{ready: Readiness{Images: 1}}
	rec := &notify.Recorder{}
	d := newDriver(host, rec)

	res, err := d.PrintAll(context.Background(), samplePages(t), "Deck")
	require.NoError(t, err)
	assert.Equal(t, "Carton Club - Deck", res.Title)
	assert.Equal(t, "/out/Deck-all-pages.pdf", res.Output)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.Images)
	assert.Zero(t, res.FailedImages)
	require.Len(t, host.staged, 1)
	assert.Len(t, host.staged[0].Pages, 2)

	d.Wait()
	assert.Equal(t, 1, host.disposals())
	assert.Empty(t, rec.Notices())
}

func TestMixedBleedPageWarns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	pages, err := layout.Paginate([]domain.Entry{
		{CardRef: domain.CardRef{ID: "a", Name: "A"}, Quantity: 7},
		{CardRef: domain.CardRef{ID: "b", Name: "B"}, Quantity: 4, Bleed: 1},
	}, layout.CardsPerPage)
	require.NoError(t, err)
	host := &fakeHost{}
	rec := &notify.Recorder{}
	d := newDriver(host, rec)

	_, err = d.PrintAll(context.Background(), pages, "Mixed")
	require.NoError(t, err)
	d.Wait()
	notices := rec.Notices()
	require.Len(t, notices, 1, "only the first page straddles the bleed groups")
	assert.Equal(t, notify.Warn, notices[0].Level)
	assert.Equal(t, "Page 1 mixes 0mm and 1mm bleed cards; it gets the 0mm cutting guide", notices[0].Message)
}

func TestPrintPage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{}
	d := newDriver(host, &notify.Recorder{})
	pages := samplePages(t)

	res, err := d.PrintPage(context.Background(), pages[1], "")
	require.NoError(t, err)
	assert.Equal(t, "Sheet Page 2 - Planche", res.Title)
	assert.Equal(t, []string{"sheet-page-2.pdf"}, host.files)
	assert.Equal(t, 1, res.Pages)
	d.Wait()
}

func TestDisposeWaitsForGrace(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{}
	d := newDriver(host, &notify.Recorder{}, WithGrace(200*time.Millisecond))
	_, err := d.PrintAll(context.Background(), samplePages(t), "x")
	require.NoError(t, err)
	assert.Equal(t, 0, host.disposals())
	d.Wait()
	assert.Equal(t, 1, host.disposals())
}

func TestImageTimeoutIsTolerated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{block: true, ready: Readiness{Images: 3, Failed: 3}}
	rec := &notify.Recorder{}
	d := newDriver(host, rec, WithImageTimeout(20*time.Millisecond))

	res, err := d.PrintAll(context.Background(), samplePages(t), "x")
	require.NoError(t, err)
	assert.Equal(t, 3, res.FailedImages)
	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.Warn, notices[0].Level)
	d.Wait()
}

func TestCallerCancellationFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{block: true}
	rec := &notify.Recorder{}
	d := newDriver(host, rec)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.PrintAll(ctx, samplePages(t), "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	d.Wait()
	assert.Equal(t, 1, host.disposals())
	require.Len(t, rec.Notices(), 1)
	assert.Equal(t, notify.Error, rec.Notices()[0].Level)
}

func TestHostPanicIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	host := &fakeHost{panicOn: "trigger"}
	rec := &notify.Recorder{}
	d := newDriver(host, rec)

	_, err := d.PrintAll(context.Background(), samplePages(t), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom")
	d.Wait()
	assert.Equal(t, 1, host.disposals())
	require.Len(t, rec.Notices(), 1)
	assert.Equal(t, notify.Error, rec.Notices()[0].Level)
}

func TestTriggerError(t *testing.T) {
	host := &fakeHost{triggerErr: errors.New("printer on fire")}
	d := newDriver(host, &notify.Recorder{})
	_, err := d.PrintAll(context.Background(), samplePages(t), "x")
	assert.ErrorContains(t, err, "printer on fire")
	d.Wait()
}

func TestNoPages(t *testing.T) {
	host := &fakeHost{}
	d := newDriver(host, &notify.Recorder{})
	_, err := d.PrintAll(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrNoPages)
	assert.Empty(t, host.staged)
}

func TestLandmarkFailureAbortsBeforeStaging(t *testing.T) {
	host := &fakeHost{}
	rec := &notify.Recorder{}
	d := NewDriver(render.New(brokenLandmarks{}), host, WithNotifier(rec))
	_, err := d.PrintAll(context.Background(), samplePages(t), "x")
	require.ErrorIs(t, err, render.ErrLandmark)
	assert.Empty(t, host.staged)
	assert.Len(t, rec.Notices(), 1)
}
