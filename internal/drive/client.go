/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package drive searches card images in Google Drive folders through the
// Drive v3 REST API, authenticated with a plain API key.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cartonclub/internal/domain"
	applog "cartonclub/internal/log"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"
	maxPageSize    = 1000
	initialBackoff = time.Second
	maxBackoff     = 16 * time.Second
	fileFields     = "id,name,mimeType,parents,thumbnailLink,webContentLink,webViewLink"
)

var (
	ErrMissingName  = errors.New("missing name parameter")
	ErrNotFound     = errors.New("drive resource not found")
	ErrUnauthorized = errors.New("drive rejected the API key")
	ErrRateLimited  = errors.New("drive rate limit exceeded")
)

// APIError is a non-2xx answer from Drive.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive api: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxResults     int
	Retries        int
	// Backoff is the first retry delay; it doubles up to 16s.
	Backoff time.Duration
	Client  *http.Client
}

// Client talks to the Drive files endpoint.
type Client struct {
	base       string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	maxResults int
	retries    int
	backoff    time.Duration
	log        *slog.Logger
}

func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.RequestsPerSec <= 0 {
		o.RequestsPerSec = 5
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 100
	}
	if o.Retries < 0 {
		o.Retries = 0
	} else if o.Retries == 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = initialBackoff
	}
	hc := o.Client
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		base:       strings.TrimRight(o.BaseURL, "/"),
		apiKey:     o.APIKey,
		http:       hc,
		limiter:    rate.NewLimiter(rate.Limit(o.RequestsPerSec), 1),
		maxResults: o.MaxResults,
		retries:    o.Retries,
		backoff:    o.Backoff,
		log:        applog.WithComponent("drive"),
	}
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Name       string
	FolderIDs  []string
	ImagesOnly bool
	MaxResults int
	OrderBy    string
}

// SearchResult mirrors the search endpoint of the web front end.
type SearchResult struct {
	Files           []domain.CardRef `json:"files"`
	SearchedFolders []string         `json:"searchedFolders"`
	Query           string           `json:"query"`
}

type fileList struct {
	Files         []domain.CardRef `json:"files"`
	NextPageToken string           `json:"nextPageToken"`
}

// BuildQuery renders the Drive "q" expression for o.
func BuildQuery(o SearchOptions) string {
	conds := []string{"name contains " + quote(o.Name)}
	if len(o.FolderIDs) > 0 {
		parts := make([]string, len(o.FolderIDs))
		for i, id := range o.FolderIDs {
			parts[i] = quote(id) + " in parents"
		}
		conds = append(conds, "("+strings.Join(parts, " or ")+")")
	}
	if o.ImagesOnly {
		conds = append(conds, "mimeType contains 'image/'")
	}
	conds = append(conds, "trashed = false")
	return strings.Join(conds, " and ")
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// Enhance fills the derived URLs of a file: a direct view link for images
// (the thumbnail otherwise), the download link and the web view link.
func Enhance(f domain.CardRef) domain.CardRef {
	if strings.HasPrefix(f.MimeType, "image/") {
		f.ImageURL = "https://drive.google.com/uc?id=" + url.QueryEscape(f.ID) + "&export=view"
	} else {
		f.ImageURL = f.ThumbnailLink
	}
	f.DownloadURL = f.WebContentLink
	f.ViewURL = f.WebViewLink
	return f
}

// Search lists files whose name contains o.Name inside any of o.FolderIDs,
// following page tokens until MaxResults files are collected.
func (c *Client) Search(ctx context.Context, o SearchOptions) (SearchResult, error) {
	if strings.TrimSpace(o.Name) == "" {
		return SearchResult{}, ErrMissingName
	}
	limit := o.MaxResults
	if limit <= 0 {
		limit = c.maxResults
	}
	orderBy := o.OrderBy
	if orderBy == "" {
		orderBy = "name"
	}
	q := BuildQuery(o)
	res := SearchResult{Files: []domain.CardRef{}, SearchedFolders: append([]string{}, o.FolderIDs...), Query: q}
	l := applog.WithOperation(c.log, "search").With(slog.String("name", o.Name), slog.Int("folders", len(o.FolderIDs)))

	token := ""
	for {
		v := url.Values{}
		v.Set("q", q)
		v.Set("fields", "nextPageToken,files("+fileFields+")")
		v.Set("pageSize", strconv.Itoa(min(limit-len(res.Files), maxPageSize)))
		v.Set("orderBy", orderBy)
		v.Set("supportsAllDrives", "true")
		v.Set("includeItemsFromAllDrives", "true")
		if token != "" {
			v.Set("pageToken", token)
		}
		var page fileList
		if err := c.getJSON(ctx, c.base+"/files?"+c.withKey(v).Encode(), &page); err != nil {
			l.Warn("search failed", slog.Any("err", err))
			return res, fmt.Errorf("search drive: %w", err)
		}
		for _, f := range page.Files {
			res.Files = append(res.Files, Enhance(f))
		}
		token = page.NextPageToken
		if token == "" || len(res.Files) >= limit {
			break
		}
	}
	if len(res.Files) > limit {
		res.Files = res.Files[:limit]
	}
	l.Debug("search done", slog.Int("files", len(res.Files)))
	return res, nil
}

// MediaURL is the API URL returning the raw bytes of file id.
func (c *Client) MediaURL(id string) string {
	v := url.Values{}
	v.Set("alt", "media")
	return c.base + "/files/" + url.PathEscape(id) + "?" + c.withKey(v).Encode()
}

// Download streams the content of file id. The caller closes the body.
func (c *Client) Download(ctx context.Context, id string) (io.ReadCloser, string, error) {
	resp, err := c.do(ctx, c.MediaURL(id))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", id, err)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) withKey(v url.Values) url.Values {
	if c.apiKey != "" {
		v.Set("key", c.apiKey)
	}
	return v
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	resp, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do performs a rate-limited GET, retrying network errors, 429 and 5xx
// with exponential backoff. A 2xx response is returned open.
func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = min(backoff*2, maxBackoff)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		apiErr := readAPIError(resp)
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, apiErr
		}
		lastErr = apiErr
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			backoff = min(time.Duration(s)*time.Second, maxBackoff)
		}
		c.log.Debug("retrying drive request", slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

func readAPIError(resp *http.Response) *APIError {
	defer func() { _ = resp.Body.Close() }()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseFolderIDs splits a comma-separated folder list, falling back to
// defaults when it yields nothing.
func ParseFolderIDs(param string, defaults []string) []string {
	var ids []string
	for _, p := range strings.Split(param, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	if len(ids) == 0 {
		return append([]string(nil), defaults...)
	}
	return ids
}
