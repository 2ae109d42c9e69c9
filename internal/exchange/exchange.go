/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package exchange exports the focused collection as a JSON file and
// imports such files back, either merging cards or replacing the collection.
package exchange

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"cartonclub/internal/domain"
	applog "cartonclub/internal/log"
	"cartonclub/internal/notify"
)

var (
	// ErrNothingToExport is returned when no collection is focused.
	ErrNothingToExport = errors.New("no collection to export")
	// ErrMalformed wraps unparsable or schema-violating import files.
	ErrMalformed = errors.New("invalid collection file")
)

//go:embed schema.json
var schemaJSON []byte

// Mode selects how an import is applied.
type Mode int

const (
	// ModeMerge adds every imported card quantity times to the focused
	// collection, re-deriving bleed and ordering.
	ModeMerge Mode = iota
	// ModeReplace stores the imported collection as-is in place of the
	// focused one.
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "merge"
}

// Store is the part of the collection store the exchange needs.
type Store interface {
	Focused() (domain.Collection, bool)
	AddCard(ctx context.Context, ref domain.CardRef) (domain.Entry, error)
	ReplaceFocused(ctx context.Context, c domain.Collection) error
}

// ImportResult describes an applied import.
type ImportResult struct {
	File         string
	Mode         Mode
	Entries      int
	Cards        int
	CollectionID string
}

// Exchanger moves collections in and out of JSON files.
type Exchanger struct {
	store   Store
	notices notify.Notifier
	now     func() time.Time
	schema  *gojsonschema.Schema
	log     *slog.Logger
}

type Option func(*Exchanger)

func WithNotifier(n notify.Notifier) Option { return func(x *Exchanger) { x.notices = n } }

// WithClock fixes the date used in export file names.
func WithClock(now func() time.Time) Option { return func(x *Exchanger) { x.now = now } }

func New(store Store, opts ...Option) (*Exchanger, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile collection schema: %w", err)
	}
	x := &Exchanger{
		store:   store,
		notices: notify.Discard,
		now:     time.Now,
		schema:  schema,
		log:     applog.WithComponent("exchange"),
	}
	for _, o := range opts {
		o(x)
	}
	return x, nil
}

// FileName is the export file name for day t.
func FileName(t time.Time) string {
	return "carton-club-sheets-" + t.Format("2006-01-02") + ".json"
}

// Export writes the focused collection to sink as indented JSON.
func (x *Exchanger) Export(ctx context.Context, sink Sink) (string, error) {
	l := applog.WithOperation(x.log, "export")
	c, ok := x.store.Focused()
	if !ok {
		notify.Warnf(x.notices, "No sheet to export")
		return "", ErrNothingToExport
	}
	if c.Content == nil {
		c.Content = []domain.Entry{}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}
	loc, err := sink.Write(ctx, FileName(x.now()), data)
	if err != nil {
		notify.Failure(x.notices, "Export failed", err)
		return "", err
	}
	applog.WithCollection(l, c.ID, c.Name).Info("collection exported", slog.String("to", loc), slog.Int("entries", len(c.Content)))
	return loc, nil
}

// Import reads src and applies it with mode. A file that does not parse or
// does not match the export schema changes nothing.
func (x *Exchanger) Import(ctx context.Context, src Source, mode Mode) (ImportResult, error) {
	l := applog.WithOperation(x.log, "import").With(slog.String("mode", mode.String()))
	name, data, err := src.Read(ctx)
	if err != nil {
		notify.Failure(x.notices, "Import failed", err)
		return ImportResult{}, err
	}
	res := ImportResult{File: name, Mode: mode}
	c, err := x.Decode(data)
	if err != nil {
		l.Warn("rejected import file", slog.String("file", name), slog.Any("err", err))
		notify.Failure(x.notices, "Invalid JSON file", err)
		return res, err
	}
	res.Entries = len(c.Content)
	res.Cards = c.CardCount()

	switch mode {
	case ModeReplace:
		if err := x.store.ReplaceFocused(ctx, c); err != nil {
			notify.Failure(x.notices, "Import failed", err)
			return res, err
		}
	default:
		for _, e := range c.Content {
			for q := 0; q < e.Quantity; q++ {
				if _, err := x.store.AddCard(ctx, e.CardRef); err != nil {
					notify.Failure(x.notices, "Import failed", err)
					return res, err
				}
			}
		}
	}
	if f, ok := x.store.Focused(); ok {
		res.CollectionID = f.ID
	}
	l.Info("collection imported", slog.String("file", name), slog.Int("entries", res.Entries), slog.Int("cards", res.Cards))
	return res, nil
}

// Decode validates data against the export schema and parses it.
func (x *Exchanger) Decode(data []byte) (domain.Collection, error) {
	var c domain.Collection
	if !json.Valid(data) {
		return c, fmt.Errorf("%w: not JSON", ErrMalformed)
	}
	result, err := x.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return c, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if id, dup := c.DuplicateID(); dup {
		return c, fmt.Errorf("%w: card %q listed twice", ErrMalformed, id)
	}
	return c, nil
}
