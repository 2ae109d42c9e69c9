/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartonclub/internal/config"
	"cartonclub/internal/domain"
)

const planechase = "1HPuw0u6y0cvbId0JT8wqLfZp0sjdfbkc"

func testSession(t *testing.T, backend string) *session {
	t.Helper()
	cfg := config.Defaults()
	cfg.General.DataDir = t.TempDir()
	cfg.Print.OutDir = filepath.Join(cfg.General.DataDir, "out")
	cfg.Print.GraceMs = 1
	cfg.Storage.Backend = backend
	s := newSession(cfg, "", nil)
	t.Cleanup(s.Close)
	return s
}

func execute(t *testing.T, s *session, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(s)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRef(t *testing.T, ref domain.CardRef) string {
	t.Helper()
	b, err := json.Marshal(ref)
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), ref.ID+".json")
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func TestVersion(t *testing.T) {
	out, err := execute(t, testSession(t, "memory"), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Carton Club "))
}

func TestCollectionCommands(t *testing.T) {
	s := testSession(t, "file")

	out, err := execute(t, s, "new", "--name", "Red Aggro")
	require.NoError(t, err)
	assert.Contains(t, out, `Created "Red Aggro"`)

	_, err = execute(t, s, "new")
	require.NoError(t, err)

	ref := writeRef(t, domain.CardRef{ID: "c1", Name: "Luffy", MimeType: "image/png", Parents: []string{planechase}})
	_, err = execute(t, s, "focus", "red")
	require.NoError(t, err)
	out, err = execute(t, s, "add", "--json", ref, "--copies", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `Luffy x3 in "Red Aggro" (bleed 1mm)`)

	out, err = execute(t, s, "qty", "c1")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = execute(t, s, "remove", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1: 2 left\n", out)

	out, err = execute(t, s, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Red Aggro")
	assert.Contains(t, out, "New Deck")

	out, err = execute(t, s, "pages")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"), out)

	// A fresh session reads what the previous one persisted.
	s2 := newSession(s.cfg, "", nil)
	defer s2.Close()
	out, err = execute(t, s2, "qty", "c1")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = execute(t, s2, "rename", "Red Aggro", "Blue")
	require.NoError(t, err)
	_, err = execute(t, s2, "delete", "Blue")
	require.NoError(t, err)
	_, err = execute(t, s2, "pages")
	assert.ErrorIs(t, err, errNoFocus)
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	s := testSession(t, "memory")
	_, err := execute(t, s, "new")
	require.NoError(t, err)
	_, err = execute(t, s, "new")
	require.NoError(t, err)

	_, err = execute(t, s, "focus", "new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches 2 collections")
	_, err = execute(t, s, "focus", "New Deck (2)")
	assert.NoError(t, err)
}

func TestAddNeedsCardOrKey(t *testing.T) {
	s := testSession(t, "memory")
	_, err := execute(t, s, "add")
	assert.Error(t, err)
	_, err = execute(t, s, "add", "luffy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config set-key")
}

func TestExportImport(t *testing.T) {
	s := testSession(t, "memory")
	ref := writeRef(t, domain.CardRef{ID: "c1", Name: "Zoro", MimeType: "image/png", Parents: []string{planechase}})
	_, err := execute(t, s, "add", "--json", ref)
	require.NoError(t, err)

	out, err := execute(t, s, "export")
	require.NoError(t, err)
	path := strings.TrimSpace(strings.TrimPrefix(out, "Exported to"))
	assert.FileExists(t, path)

	out, err = execute(t, s, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(merge)")
	out, _ = execute(t, s, "qty", "c1")
	assert.Equal(t, "2\n", out)

	_, err = execute(t, s, "import", "--replace", path)
	require.NoError(t, err)
	out, _ = execute(t, s, "qty", "c1")
	assert.Equal(t, "1\n", out)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"content":[{"id":""}]}`), 0o644))
	_, err = execute(t, s, "import", bad)
	assert.Error(t, err)
}

func TestPrintWritesPDF(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 63, 88))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	s := testSession(t, "memory")
	_, err := execute(t, s, "new", "--name", "Proxies")
	require.NoError(t, err)
	ref := writeRef(t, domain.CardRef{ID: "c1", Name: "Nami", ImageURL: srv.URL + "/c1.png", Parents: []string{planechase}})
	_, err = execute(t, s, "add", "--json", ref, "--copies", "10")
	require.NoError(t, err)

	out, err := execute(t, s, "print")
	require.NoError(t, err)
	assert.Contains(t, out, "Carton Club - Proxies: 2 page(s)")
	pdf := filepath.Join(s.cfg.Print.OutDir, "Proxies-all-pages.pdf")
	b, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

	out, err = execute(t, s, "print", "--page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Sheet Page 2 - Proxies")
	assert.FileExists(t, filepath.Join(s.cfg.Print.OutDir, "Proxies-page-2.pdf"))

	_, err = execute(t, s, "print", "--page", "3")
	assert.Error(t, err)
	_, err = execute(t, s, "print", "--host", "fax")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	mem := testSession(t, "memory")
	_, err := execute(t, mem, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeps no history")

	s := testSession(t, "file")
	out, err := execute(t, s, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No revisions")

	_, err = execute(t, s, "new")
	require.NoError(t, err)
	_, err = execute(t, s, "new")
	require.NoError(t, err)
	out, err = execute(t, s, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "REVISION")

	_, err = execute(t, s, "restore", "abc")
	assert.Error(t, err)
	_, err = execute(t, s, "restore", "1")
	assert.Error(t, err)
}

func TestFolders(t *testing.T) {
	out, err := execute(t, testSession(t, "memory"), "folders", "--game", "mtg")
	require.NoError(t, err)
	assert.Contains(t, out, "Planechase")
	_, err = execute(t, testSession(t, "memory"), "folders", "--game", "chess")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask("abcd"))
	assert.Equal(t, "AIz****xyz", mask("AIzaSyBxyz"))
}
