/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imagecache keeps downloaded card images on disk, keyed by URL, and
// evicts the least recently used files once a size cap is reached.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	applog "cartonclub/internal/log"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyURL is returned for a card without an image URL.
	ErrEmptyURL = errors.New("image URL is empty")
	// ErrTooLarge is returned for downloads or images over the size limits.
	ErrTooLarge = errors.New("image too large")
)

const fileExt = ".img"

// Cache manages local copies of remote card images.
type Cache struct {
	dir      string
	maxSize  int64
	maxFile  int64
	timeout  time.Duration
	client   *http.Client
	log      *slog.Logger
	inflight singleflight.Group

	mu       sync.RWMutex
	sizes    map[string]int64
	lastUsed map[string]time.Time
}

// Options configures the cache.
type Options struct {
	Dir     string
	MaxSize int64 // bytes, 0 = unlimited
	// MaxFileSize caps a single download; 0 means DefaultMaxFileSize.
	MaxFileSize int64
	// Timeout bounds each download, including shared ones.
	Timeout time.Duration
	// Client overrides the HTTP client (Timeout is then ignored).
	Client *http.Client
}

// DefaultMaxFileSize is the largest image the cache downloads.
const DefaultMaxFileSize = 32 << 20

// DefaultOptions returns a 500 MB cache under dir.
func DefaultOptions(dir string) Options {
	return Options{Dir: dir, MaxSize: 500 << 20, Timeout: 30 * time.Second}
}

// New creates the cache directory if needed and indexes existing files.
func New(o Options) (*Cache, error) {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Minute
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	c := &Cache{
		dir:      o.Dir,
		maxSize:  o.MaxSize,
		maxFile:  o.MaxFileSize,
		timeout:  o.Timeout,
		client:   client,
		log:      applog.WithComponent("imagecache"),
		sizes:    map[string]int64{},
		lastUsed: map[string]time.Time{},
	}
	if err := c.scan(); err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}
	return c, nil
}

// Path returns the local file for imageURL, downloading it on a miss.
// Concurrent misses for the same URL share one download, which keeps going
// when one of the waiting callers gives up. The file may be evicted later;
// use Open to read it.
func (c *Cache) Path(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", ErrEmptyURL
	}
	path := filepath.Join(c.dir, key(imageURL))

	c.mu.Lock()
	if _, ok := c.sizes[path]; ok {
		c.lastUsed[path] = time.Now()
		c.mu.Unlock()
		return path, nil
	}
	c.mu.Unlock()

	ch := c.inflight.DoChan(path, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.download(dctx, imageURL, path)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Open returns the cached image for imageURL opened for reading. The file
// is opened under the cache lock, so a concurrent eviction cannot remove it
// first.
func (c *Cache) Open(ctx context.Context, imageURL string) (*os.File, error) {
	for attempt := 0; ; attempt++ {
		path, err := c.Path(ctx, imageURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		_, ok := c.sizes[path]
		var f *os.File
		if ok {
			f, err = os.Open(path)
		}
		c.mu.Unlock()
		if ok {
			return f, err
		}
		if attempt > 0 {
			return nil, fmt.Errorf("image %s evicted while opening", imageURL)
		}
	}
}

// Bytes returns the image content for imageURL.
func (c *Cache) Bytes(ctx context.Context, imageURL string) ([]byte, error) {
	f, err := c.Open(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (c *Cache) download(ctx context.Context, imageURL, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, "download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	size, err := io.Copy(tmp, io.LimitReader(resp.Body, c.maxFile+1))
	if err == nil && size > c.maxFile {
		err = fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.maxFile)
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("save image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSpace(size)
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move cached file: %w", err)
	}
	c.sizes[path] = size
	c.lastUsed[path] = time.Now()
	c.log.Debug("image cached", slog.String("url", imageURL), slog.Int64("bytes", size))
	return path, nil
}

// ensureSpace evicts least recently used files. Caller holds c.mu.
// Files that cannot be removed stay indexed.
func (c *Cache) ensureSpace(needed int64) {
	if c.maxSize == 0 {
		return
	}
	var current int64
	for _, s := range c.sizes {
		current += s
	}
	if current+needed <= c.maxSize {
		return
	}
	paths := make([]string, 0, len(c.sizes))
	for p := range c.sizes {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return c.lastUsed[paths[i]].Before(c.lastUsed[paths[j]]) })
	for _, p := range paths {
		if current+needed <= c.maxSize {
			break
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.log.Warn("cannot evict cached file", slog.String("path", p), slog.Any("err", err))
			continue
		}
		current -= c.sizes[p]
		delete(c.sizes, p)
		delete(c.lastUsed, p)
	}
}

// Clear removes every cached image.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.sizes {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cached file: %w", err)
		}
	}
	c.sizes = map[string]int64{}
	c.lastUsed = map[string]time.Time{}
	return nil
}

// Stats describes the cache contents.
type Stats struct {
	Files   int
	Size    int64
	MaxSize int64
	Dir     string
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, s := range c.sizes {
		total += s
	}
	return Stats{Files: len(c.sizes), Size: total, MaxSize: c.maxSize, Dir: c.dir}
}

func (c *Cache) scan() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		c.sizes[p] = info.Size()
		c.lastUsed[p] = info.ModTime()
	}
	return nil
}

func key(imageURL string) string {
	h := sha256.Sum256([]byte(imageURL))
	return hex.EncodeToString(h[:]) + fileExt
}
