/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrLandmark is returned when the cutting-guide overlay for a page cannot be
// loaded. It aborts the export.
var ErrLandmark = errors.New("landmark asset unavailable")

const (
	landmarksNoBleed = "landmarks-bleed-0mm.svg"
	landmarksBleed1  = "landmarks-bleed-1mm.svg"
)

// LandmarkFile names the overlay asset for a page bleed. Only 1 mm has its
// own guide; every other value falls back to the no-bleed guide.
func LandmarkFile(bleed float64) string {
	if bleed == 1 {
		return landmarksBleed1
	}
	return landmarksNoBleed
}

// LandmarkSource resolves an overlay asset by file name.
type LandmarkSource interface {
	Landmark(ctx context.Context, name string) ([]byte, error)
}

//go:embed assets/*.svg
var assets embed.FS

// EmbeddedLandmarks serves the guides compiled into the binary.
type EmbeddedLandmarks struct{}

func (EmbeddedLandmarks) Landmark(_ context.Context, name string) ([]byte, error) {
	b, err := assets.ReadFile("assets/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLandmark, name, err)
	}
	return b, nil
}

// HTTPLandmarks fetches guides from a static asset base URL, e.g. the web
// front end that ships the same SVG files.
type HTTPLandmarks struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPLandmarks) Landmark(ctx context.Context, name string) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	u := strings.TrimRight(h.BaseURL, "/") + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLandmark, name, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLandmark, name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrLandmark, name, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLandmark, name, err)
	}
	return b, nil
}
