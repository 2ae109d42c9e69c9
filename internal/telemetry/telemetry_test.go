/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type sink struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes []string
}

func (s *sink) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		s.mu.Lock()
		s.events = append(s.events, m)
		s.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.crashes = append(s.crashes, string(b))
		s.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (s *sink) waitEvents(t *testing.T, n int) []map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.events) >= n {
			out := append([]map[string]any(nil), s.events...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d events", n)
	return nil
}

func TestPrintAndImportEvents(t *testing.T) {
	var s sink
	srv := s.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	defer c.Close()

	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.PrintDone("pdf", 2, 12, 1, 1500*time.Millisecond)
	c.ImportDone("merge", 3, 7)
	c.Flush(context.Background())

	events := s.waitEvents(t, 2)
	if events[0]["name"] != EventPrintDone || events[0]["host"] != "pdf" {
		t.Fatalf("unexpected print event: %v", events[0])
	}
	if events[0]["failed_images"].(float64) != 1 || events[0]["elapsed_ms"].(float64) != 1500 {
		t.Fatalf("unexpected print counters: %v", events[0])
	}
	if events[1]["name"] != EventImportDone || events[1]["mode"] != "merge" {
		t.Fatalf("unexpected import event: %v", events[1])
	}
	if _, ok := events[1]["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
}

func TestUploadCrashWaitsOnClose(t *testing.T) {
	var s sink
	srv := s.server(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash", Timeout: time.Second})
	c.UploadCrash([]byte("STACKTRACE"))
	c.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.crashes) != 1 || s.crashes[0] != "STACKTRACE" {
		t.Fatalf("crash upload missing: %v", s.crashes)
	}
}

func TestDisabledSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	off := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	off.Event("x", nil)
	off.UploadCrash([]byte("x"))
	off.Close()

	on := New(Config{OptIn: true, EventsURL: srv.URL})
	on.Event("", nil)
	on.Flush(context.Background())
	on.Close()

	var nilClient *Client
	nilClient.PrintDone("pdf", 1, 1, 0, 0)
	nilClient.UploadCrash(nil)

	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestSendErrorsAreIgnored(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	c.Close()
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CC_TELEMETRY_OPT_IN", "yes")
	t.Setenv("CC_TELEMETRY_URL", " http://127.0.0.1:0 ")
	t.Setenv("CC_CRASH_UPLOAD_URL", "")
	t.Setenv("CC_TELEMETRY_TIMEOUT_MS", "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:0" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}

	c := New(cfg)
	prev := SetDefault(c)
	defer func() {
		SetDefault(prev)
		c.Close()
	}()
	if !Default().Enabled() {
		t.Fatalf("default client should be enabled")
	}
}
