/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package collection owns the list of card collections and is the only
// code that mutates them. Every mutating call runs to completion under one
// lock, persistence write included, so callers never observe a half-applied
// change.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cartonclub/internal/domain"
	applog "cartonclub/internal/log"
	"cartonclub/internal/notify"
	"cartonclub/internal/storage"

	"github.com/google/uuid"
)

const (
	// StorageKey holds the JSON array of all collections.
	StorageKey = "sheets-creator-decks"
	// FocusKey holds the id of the focused collection between runs.
	FocusKey = "sheets-creator-focus"
)

// ErrDuplicateCard is returned when a collection holds two entries for the
// same card id.
var ErrDuplicateCard = errors.New("duplicate card entry")

func checkUnique(c domain.Collection) error {
	if id, dup := c.DuplicateID(); dup {
		return fmt.Errorf("%w: %s", ErrDuplicateCard, id)
	}
	return nil
}

// BleedResolver maps a card's parent folders to the bleed of their scans.
type BleedResolver interface {
	BleedFor(parents []string) (float64, bool)
}

// Store manages collections and the focused one.
type Store struct {
	mu          sync.Mutex
	kv          storage.KV
	folders     BleedResolver
	notices     notify.Notifier
	log         *slog.Logger
	newID       func() string
	collections []domain.Collection
	focused     string
}

type Option func(*Store)

// WithNotifier routes operator warnings (e.g. unmapped folders).
func WithNotifier(n notify.Notifier) Option { return func(s *Store) { s.notices = n } }

// WithIDGenerator replaces the uuid generator, for deterministic tests.
func WithIDGenerator(f func() string) Option { return func(s *Store) { s.newID = f } }

// New returns an empty store. Call Load to read persisted collections.
func New(kv storage.KV, folders BleedResolver, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		folders: folders,
		notices: notify.Discard,
		log:     applog.WithComponent("collection"),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory state with the persisted one. Missing or
// unparsable data yields an empty list; only a failing backend is an error.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := applog.WithOperation(s.log, "load")

	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.collections, s.focused = nil, ""
		return fmt.Errorf("load collections: %w", err)
	}
	s.collections = nil
	if ok && raw != "" {
		var cs []domain.Collection
		if uerr := json.Unmarshal([]byte(raw), &cs); uerr != nil {
			l.Warn("stored collections unreadable, starting empty", slog.Any("err", uerr))
		} else {
			s.collections = cs
		}
	}

	s.focused = ""
	if id, ok, ferr := s.kv.Get(ctx, FocusKey); ferr == nil && ok && s.indexOf(id) >= 0 {
		s.focused = id
	}
	l.Debug("collections loaded", slog.Int("count", len(s.collections)), slog.String("focused", s.focused))
	return nil
}

// Collections returns copies of all collections in creation order.
func (s *Store) Collections() []domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Collection, len(s.collections))
	for i, c := range s.collections {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a copy of the collection with the given id.
func (s *Store) Get(id string) (domain.Collection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.collections[i].Clone(), true
	}
	return domain.Collection{}, false
}

// Focused returns a copy of the focused collection.
func (s *Store) Focused() (domain.Collection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(s.focused); i >= 0 {
		return s.collections[i].Clone(), true
	}
	return domain.Collection{}, false
}

// CreateCollection appends an empty collection with a fresh id and a
// deduplicated default name, focuses it and persists.
func (s *Store) CreateCollection(ctx context.Context) (domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.createLocked()
	applog.WithCollection(applog.WithOperation(s.log, "create"), c.ID, c.Name).Info("collection created")
	return c.Clone(), s.persistLocked(ctx, true)
}

func (s *Store) createLocked() domain.Collection {
	c := domain.Collection{ID: s.newID(), Name: NextDefaultName(s.collections), Content: []domain.Entry{}}
	s.collections = append(s.collections, c)
	s.focused = c.ID
	return c
}

// AddCard adds one copy of ref to the focused collection, creating and
// focusing a collection first when none is focused. A new card is inserted
// right after the last entry with the same bleed; a known card only gets
// its quantity bumped.
func (s *Store) AddCard(ctx context.Context, ref domain.CardRef) (domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := applog.WithOperation(s.log, "add_card").With(slog.String("card", ref.ID))

	createdFocus := false
	i := s.indexOf(s.focused)
	if i < 0 {
		s.createLocked()
		i = len(s.collections) - 1
		createdFocus = true
		l.Info("no focused collection, created one", slog.String("name", s.collections[i].Name))
	}
	c := &s.collections[i]
	bleed := s.bleedFor(ref, l)

	if len(c.Content) == 0 {
		c.Bleed = bleed
	}

	var entry domain.Entry
	if j := c.IndexOf(ref.ID); j >= 0 {
		c.Content[j].Quantity++
		entry = c.Content[j]
	} else {
		entry = domain.Entry{CardRef: cloneRef(ref), Quantity: 1, Bleed: bleed}
		pos := InsertPosition(c.Content, bleed)
		c.Content = append(c.Content, domain.Entry{})
		copy(c.Content[pos+1:], c.Content[pos:])
		c.Content[pos] = entry
	}
	return entry, s.persistLocked(ctx, createdFocus)
}

// InsertPosition returns the index right after the last entry whose bleed
// equals bleed, scanning from the end, or len(content) when there is none.
func InsertPosition(content []domain.Entry, bleed float64) int {
	for i := len(content) - 1; i >= 0; i-- {
		if content[i].Bleed == bleed {
			return i + 1
		}
	}
	return len(content)
}

func (s *Store) bleedFor(ref domain.CardRef, l *slog.Logger) float64 {
	if len(ref.Parents) == 0 {
		l.Warn("card has no parent folders, using bleed 0", slog.String("name", ref.Name))
		notify.Warnf(s.notices, "card %q has no parent folder, printing it without bleed", ref.Name)
		return 0
	}
	if s.folders != nil {
		if b, ok := s.folders.BleedFor(ref.Parents); ok {
			return b
		}
	}
	l.Warn("no known folder for card, using bleed 0", slog.String("name", ref.Name), slog.Any("parents", ref.Parents))
	notify.Warnf(s.notices, "card %q comes from an unknown folder, printing it without bleed", ref.Name)
	return 0
}

// RemoveCard removes one copy of cardID from the focused collection.
// Missing card or no focus is a no-op.
func (s *Store) RemoveCard(ctx context.Context, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(s.focused)
	if i < 0 {
		return nil
	}
	c := &s.collections[i]
	j := c.IndexOf(cardID)
	if j < 0 {
		return nil
	}
	if c.Content[j].Quantity > 1 {
		c.Content[j].Quantity--
	} else {
		c.Content = append(c.Content[:j], c.Content[j+1:]...)
	}
	return s.persistLocked(ctx, false)
}

// CardQuantity returns how many copies of cardID the focused collection
// holds; 0 when absent or nothing is focused.
func (s *Store) CardQuantity(cardID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(s.focused)
	if i < 0 {
		return 0
	}
	if j := s.collections[i].IndexOf(cardID); j >= 0 {
		return s.collections[i].Content[j].Quantity
	}
	return 0
}

// UpdateCollection replaces the stored collection with the same id.
// Unknown ids are a no-op.
func (s *Store) UpdateCollection(ctx context.Context, updated domain.Collection) error {
	if err := checkUnique(updated); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(updated.ID)
	if i < 0 {
		return nil
	}
	c := updated.Clone()
	if c.Content == nil {
		c.Content = []domain.Entry{}
	}
	s.collections[i] = c
	return s.persistLocked(ctx, false)
}

// RenameCollection changes only the name of a collection.
func (s *Store) RenameCollection(ctx context.Context, id, name string) error {
	c, ok := s.Get(id)
	if !ok {
		return nil
	}
	c.Name = name
	return s.UpdateCollection(ctx, c)
}

// DeleteCollection removes the collection and clears focus if it was focused.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	s.collections = append(s.collections[:i], s.collections[i+1:]...)
	focusChanged := false
	if s.focused == id {
		s.focused = ""
		focusChanged = true
	}
	return s.persistLocked(ctx, focusChanged)
}

// FocusCollection focuses id, or clears the focus when id is unknown.
func (s *Store) FocusCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := ""
	if s.indexOf(id) >= 0 {
		next = id
	}
	if next == s.focused {
		return nil
	}
	s.focused = next
	return s.persistFocusLocked(ctx)
}

// ReplaceFocused puts c in place of the focused collection (or appends it
// when nothing is focused) and focuses it. Any other collection already
// using c's id is dropped so ids stay unique.
func (s *Store) ReplaceFocused(ctx context.Context, c domain.Collection) error {
	if err := checkUnique(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c = c.Clone()
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.Content == nil {
		c.Content = []domain.Entry{}
	}
	target := s.indexOf(s.focused)
	if j := s.indexOf(c.ID); j >= 0 && j != target {
		s.collections = append(s.collections[:j], s.collections[j+1:]...)
		if target > j {
			target--
		}
	}
	if target >= 0 {
		s.collections[target] = c
	} else {
		s.collections = append(s.collections, c)
	}
	s.focused = c.ID
	return s.persistLocked(ctx, true)
}

// Restore replaces all collections with a previously persisted blob.
// The focus is kept when the focused id still exists.
func (s *Store) Restore(ctx context.Context, raw string) error {
	var cs []domain.Collection
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return fmt.Errorf("restore collections: %w", err)
	}
	for _, c := range cs {
		if err := checkUnique(c); err != nil {
			return fmt.Errorf("restore collections: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = cs
	focusChanged := false
	if s.indexOf(s.focused) < 0 && s.focused != "" {
		s.focused = ""
		focusChanged = true
	}
	applog.WithOperation(s.log, "restore").Info("collections restored", slog.Int("count", len(cs)))
	return s.persistLocked(ctx, focusChanged)
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.collections {
		if s.collections[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked(ctx context.Context, focusToo bool) error {
	list := s.collections
	if list == nil {
		list = []domain.Collection{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode collections: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(b)); err != nil {
		s.log.Error("persist collections failed", slog.Any("err", err))
		return fmt.Errorf("persist collections: %w", err)
	}
	if focusToo {
		return s.persistFocusLocked(ctx)
	}
	return nil
}

func (s *Store) persistFocusLocked(ctx context.Context) error {
	if err := s.kv.Set(ctx, FocusKey, s.focused); err != nil {
		s.log.Error("persist focus failed", slog.Any("err", err))
		return fmt.Errorf("persist focus: %w", err)
	}
	return nil
}

func cloneRef(r domain.CardRef) domain.CardRef {
	if r.Parents != nil {
		r.Parents = append([]string(nil), r.Parents...)
	}
	return r
}
