/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package printer drives a rendered document through a print host: stage it,
// wait for its images, produce the output and tear the host down again.
package printer

import (
	"context"

	"cartonclub/internal/render"
)

// Handle identifies a document staged inside a host.
type Handle interface {
	// FileName is the output file the job produces.
	FileName() string
}

// Readiness reports how many images a host attempted and how many of them
// could not be loaded. Failed images print as blank slots.
type Readiness struct {
	Images int
	Failed int
}

// Host is an environment that can turn a Document into printed output.
//
// WaitReady must return a usable Readiness even when ctx expires; images
// still pending at that point count as failed.
type Host interface {
	Name() string
	Stage(ctx context.Context, doc *render.Document, fileName string) (Handle, error)
	WaitReady(ctx context.Context, h Handle) (Readiness, error)
	// Trigger produces the output and returns where it went.
	Trigger(ctx context.Context, h Handle) (string, error)
	Dispose(h Handle) error
}
