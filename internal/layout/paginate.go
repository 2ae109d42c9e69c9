/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout holds the physical print geometry and splits collections
// into grid pages.
package layout

import (
	"errors"
	"fmt"

	"cartonclub/internal/domain"
)

// Physical geometry in millimetres.
const (
	PageWidthMM  = 210.0 // A4
	PageHeightMM = 297.0
	CardWidthMM  = 63.0
	CardHeightMM = 88.0
	Columns      = 3
	Rows         = 3
	CardsPerPage = Columns * Rows
)

// ErrInvalidCapacity is returned for a page capacity below 1.
var ErrInvalidCapacity = errors.New("page capacity must be at least 1")

// GridOrigin returns the top-left corner of the centred card grid.
func GridOrigin() (x, y float64) {
	return (PageWidthMM - Columns*CardWidthMM) / 2, (PageHeightMM - Rows*CardHeightMM) / 2
}

// CellOrigin returns the top-left corner of slot i (row-major).
func CellOrigin(i int) (x, y float64) {
	ox, oy := GridOrigin()
	return ox + float64(i%Columns)*CardWidthMM, oy + float64(i/Columns)*CardHeightMM
}

// Paginate expands every entry by its quantity, numbers the copies with a
// zero-based print index and cuts the sequence into pages of capacity
// cards. The last page is not padded. A page's bleed is the bleed of its
// first card.
func Paginate(content []domain.Entry, capacity int) ([]domain.Page, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	var flat []domain.PrintCard
	for _, e := range content {
		for q := 0; q < e.Quantity; q++ {
			flat = append(flat, domain.PrintCard{Entry: e, PrintIndex: len(flat)})
		}
	}
	pages := make([]domain.Page, 0, (len(flat)+capacity-1)/capacity)
	for start := 0; start < len(flat); start += capacity {
		end := min(start+capacity, len(flat))
		cards := flat[start:end:end]
		pages = append(pages, domain.Page{Number: len(pages) + 1, Cards: cards, Bleed: cards[0].Bleed})
	}
	return pages, nil
}

// PageCount returns how many pages Paginate would produce.
func PageCount(content []domain.Entry, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	n := 0
	for _, e := range content {
		n += e.Quantity
	}
	return (n + capacity - 1) / capacity
}
