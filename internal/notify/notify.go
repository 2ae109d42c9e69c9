/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package notify delivers operator-facing notices: non-fatal warnings and
// failures that a person running the tool should see, as opposed to log
// records meant for diagnostics.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice is one message for the operator.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (n Notice) String() string {
	if n.Err != nil {
		return fmt.Sprintf("%s: %v", n.Message, n.Err)
	}
	return n.Message
}

// Notifier receives notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Warnf sends a warning built from a format string.
func Warnf(n Notifier, format string, args ...any) {
	n.Notify(Notice{Level: Warn, Message: fmt.Sprintf(format, args...)})
}

// Failure sends an error notice wrapping err.
func Failure(n Notifier, msg string, err error) {
	n.Notify(Notice{Level: Error, Message: msg, Err: err})
}

// Console prints notices to a terminal, colored by level.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to w, or stderr when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{out: w}
}

func (c *Console) Notify(n Notice) {
	var tag string
	switch n.Level {
	case Error:
		tag = color.New(color.FgRed, color.Bold).Sprint("error:")
	case Warn:
		tag = color.New(color.FgYellow).Sprint("warning:")
	default:
		tag = color.New(color.FgCyan).Sprint("info:")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "%s %s\n", tag, n.String())
}

// Recorder keeps notices in memory, for tests and for the HTTP API which
// returns them with the response.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Drain returns and clears the recorded notices.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// Multi fans a notice out to several notifiers.
func Multi(ns ...Notifier) Notifier {
	return Func(func(n Notice) {
		for _, x := range ns {
			x.Notify(n)
		}
	})
}
