/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imagecache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func imageServer(t *testing.T, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestPathDownloadsOnce(t *testing.T) {
	body := pngBytes(t, 4, 4)
	srv, hits := imageServer(t, body)
	c, err := New(Options{Dir: t.TempDir(), Client: srv.Client()})
	require.NoError(t, err)

	ctx := context.Background()
	p1, err := c.Path(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	p2, err := c.Path(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), hits.Load())

	got, err := c.Bytes(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, 1, c.Stats().Files)
}

func TestPathErrors(t *testing.T) {
	srv, _ := imageServer(t, nil)
	c, err := New(Options{Dir: t.TempDir(), Client: srv.Client()})
	require.NoError(t, err)
	_, err = c.Path(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyURL)
	_, err = c.Path(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, 0, c.Stats().Files)
}

func TestCancelledWaiterKeepsSharedDownload(t *testing.T) {
	body := pngBytes(t, 4, 4)
	started := make(chan struct{})
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Options{Dir: t.TempDir(), Client: srv.Client()})
	require.NoError(t, err)
	u := srv.URL + "/slow.png"

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Path(first, u)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := c.Bytes(context.Background(), u)
		second <- err
	}()
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, <-second)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, c.Stats().Files)
}

func TestDownloadSizeCap(t *testing.T) {
	srv, _ := imageServer(t, bytes.Repeat([]byte{1}, 2048))
	c, err := New(Options{Dir: t.TempDir(), MaxFileSize: 1024, Client: srv.Client()})
	require.NoError(t, err)
	_, err = c.Path(context.Background(), srv.URL+"/big.png")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, c.Stats().Files)
}

func TestOpenFileOutlivesEviction(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("open files cannot be removed on windows")
	}
	body := pngBytes(t, 6, 6)
	srv, _ := imageServer(t, body)
	c, err := New(Options{Dir: t.TempDir(), Client: srv.Client()})
	require.NoError(t, err)

	f, err := c.Open(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, c.Clear())

	got := make([]byte, len(body)+1)
	n, _ := f.Read(got)
	assert.Equal(t, body, got[:n])
}

func TestEvictionAndRescan(t *testing.T) {
	body := pngBytes(t, 8, 8)
	srv, _ := imageServer(t, body)
	dir := t.TempDir()
	size := int64(len(body))
	c, err := New(Options{Dir: dir, MaxSize: 2 * size, Client: srv.Client()})
	require.NoError(t, err)

	ctx := context.Background()
	for _, name := range []string{"/1", "/2", "/3"} {
		_, err := c.Path(ctx, srv.URL+name)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	st := c.Stats()
	assert.Equal(t, 2, st.Files)
	assert.LessOrEqual(t, st.Size, 2*size)

	again, err := New(Options{Dir: dir, Client: srv.Client()})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Stats().Files)

	require.NoError(t, again.Clear())
	assert.Equal(t, 0, again.Stats().Files)
}

func TestNormalizePassThrough(t *testing.T) {
	raw := pngBytes(t, 10, 14)
	img, err := Normalize(raw, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Type)
	assert.Equal(t, raw, img.Data)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(10, 10), nil))
	img, err = Normalize(buf.Bytes(), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "jpg", img.Type)
}

func TestNormalizeReencodesDeepPNG(t *testing.T) {
	deep := image.NewRGBA64(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, deep))
	img, err := Normalize(buf.Bytes(), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Type)
	assert.NotEqual(t, buf.Bytes(), img.Data)
	assert.True(t, plainPNG(img.Data))
}

func TestNormalizeDownscales(t *testing.T) {
	img, err := Normalize(pngBytes(t, 400, 200), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Type)
	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 50, img.Height)
	cfg, err := png.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("not an image"), 10, 10)
	assert.Error(t, err)
}

// pngHeader is a PNG signature plus an IHDR chunk claiming w x h pixels.
func pngHeader(w, h uint32) []byte {
	var b bytes.Buffer
	b.Write([]byte("\x89PNG\r\n\x1a\n"))
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 6, 0, 0, 0)
	_ = binary.Write(&b, binary.BigEndian, uint32(len(chunk)-4))
	b.Write(chunk)
	_ = binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return b.Bytes()
}

func TestNormalizeRejectsHugeDimensions(t *testing.T) {
	_, err := Normalize(pngHeader(100000, 100000), 100, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge), "got %v", err)
}

func TestMaxPixels(t *testing.T) {
	w, h := MaxPixels(63, 88)
	assert.Equal(t, 745, w)
	assert.Equal(t, 1040, h)
}
