/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the data model shared by the collection store, the
// paginator, the print pipeline and the JSON exchange format. Field names in
// JSON tags follow the exchange file layout, so files written by earlier
// versions of the tool stay importable.

// CardRef describes a card image found by a file search. It is owned by the
// search side and treated as immutable by everything else.
type CardRef struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MimeType       string   `json:"mimeType,omitempty"`
	Parents        []string `json:"parents,omitempty"`
	ThumbnailLink  string   `json:"thumbnailLink,omitempty"`
	WebContentLink string   `json:"webContentLink,omitempty"`
	WebViewLink    string   `json:"webViewLink,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	DownloadURL    string   `json:"downloadUrl,omitempty"`
	ViewURL        string   `json:"viewUrl,omitempty"`
}

// MaxQuantity caps the copies of one card in imported or edited collections.
const MaxQuantity = 999

// Entry is a card inside a collection. Quantity is always >= 1 and Bleed (mm)
// is fixed when the entry is first inserted.
type Entry struct {
	CardRef
	Quantity int     `json:"quantity"`
	Bleed    float64 `json:"bleed,omitempty"`
}

// Collection is a named, ordered list of entries, unique by card id.
// Order matters: entries sharing a bleed value are kept contiguous.
type Collection struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Content []Entry `json:"content"`
	// Bleed is taken from the first card added to an empty collection.
	Bleed float64 `json:"bleed,omitempty"`
}

// Clone returns a deep copy safe to hand out of the store.
func (c Collection) Clone() Collection {
	out := c
	out.Content = make([]Entry, len(c.Content))
	for i, e := range c.Content {
		out.Content[i] = e
		if e.Parents != nil {
			out.Content[i].Parents = append([]string(nil), e.Parents...)
		}
	}
	return out
}

// IndexOf returns the position of the entry for cardID, or -1.
func (c Collection) IndexOf(cardID string) int {
	for i := range c.Content {
		if c.Content[i].ID == cardID {
			return i
		}
	}
	return -1
}

// DuplicateID reports the first card id that appears in more than one entry.
func (c Collection) DuplicateID() (string, bool) {
	seen := make(map[string]struct{}, len(c.Content))
	for _, e := range c.Content {
		if _, ok := seen[e.ID]; ok {
			return e.ID, true
		}
		seen[e.ID] = struct{}{}
	}
	return "", false
}

// CardCount is the number of physical cards, i.e. the sum of quantities.
func (c Collection) CardCount() int {
	n := 0
	for _, e := range c.Content {
		n += e.Quantity
	}
	return n
}

// PrintCard is one physical card slot on a page.
type PrintCard struct {
	Entry
	PrintIndex int `json:"printIndex"`
}

// Page is a derived, never persisted, grid page. Bleed selects the cutting guide.
type Page struct {
	Number int         `json:"number"`
	Cards  []PrintCard `json:"cards"`
	Bleed  float64     `json:"bleed"`
}
