/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends anonymous, opt-in usage events (finished prints,
// imports) and crash reports. Nothing is sent unless the user opted in and
// an endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	applog "cartonclub/internal/log"
	"cartonclub/internal/version"
)

// Event names.
const (
	EventPrintDone  = "print_done"
	EventImportDone = "import_done"
)

// Config controls the sender. It is read from the environment:
//
//	CC_TELEMETRY_OPT_IN       1/true/yes/on enables events
//	CC_TELEMETRY_URL          endpoint receiving JSON events
//	CC_CRASH_UPLOAD_URL       endpoint receiving plain-text crash reports
//	CC_TELEMETRY_TIMEOUT_MS   request timeout, default 1500
//	CC_TELEMETRY_DEBUG        log every send attempt
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("CC_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("CC_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("CC_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("CC_TELEMETRY_DEBUG") != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv("CC_TELEMETRY_TIMEOUT_MS"))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Client queues events and posts them from one background goroutine.
// A full queue drops events; send failures are ignored.
type Client struct {
	cfg     Config
	log     *slog.Logger
	http    *http.Client
	queue   chan map[string]any
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	uploads sync.WaitGroup
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, built from the environment on
// first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs c as the process-wide client and returns the
// previous one.
func SetDefault(c *Client) *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClient
	defaultClient = c
	return prev
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		http:    &http.Client{Timeout: cfg.Timeout},
		queue:   make(chan map[string]any, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are actually sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues name with props. Props must not carry personal data such as
// collection or card names.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	select {
	case c.queue <- payload:
	default:
	}
}

// PrintDone records a finished print job.
func (c *Client) PrintDone(host string, pages, images, failed int, elapsed time.Duration) {
	c.Event(EventPrintDone, map[string]any{
		"host":          host,
		"pages":         pages,
		"images":        images,
		"failed_images": failed,
		"elapsed_ms":    elapsed.Milliseconds(),
	})
}

// ImportDone records an applied import.
func (c *Client) ImportDone(mode string, entries, cards int) {
	c.Event(EventImportDone, map[string]any{
		"mode":    mode,
		"entries": entries,
		"cards":   cards,
	})
}

// Flush waits up to half a second for queued events to be sent.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.NewTimer(500 * time.Millisecond)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for len(c.queue) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Close stops the sender and waits for in-flight crash uploads.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		<-c.stopped
		c.uploads.Wait()
	})
}

func (c *Client) loop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case item := <-c.queue:
			b, err := json.Marshal(item)
			if err != nil {
				continue
			}
			c.post(c.cfg.EventsURL, "application/json", b, "event")
		}
	}
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("kind", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("kind", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts report to the crash endpoint in the background.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := bytes.Clone(report)
	c.uploads.Add(1)
	go func() {
		defer c.uploads.Done()
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash")
	}()
}
