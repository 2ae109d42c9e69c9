//go:build integration

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package printer

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"cartonclub/internal/domain"
	"cartonclub/internal/layout"
	"cartonclub/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a Chrome/Chromium binary; set CC_CHROME_BIN to pick one.
func TestBrowserHostPrintsPDF(t *testing.T) {
	host := NewBrowserHost(t.TempDir(), os.Getenv("CC_CHROME_BIN"))
	t.Cleanup(func() { _ = host.Close() })

	pages, err := layout.Paginate([]domain.Entry{
		{CardRef: domain.CardRef{ID: "p", Name: "Placeholder"}, Quantity: 10},
	}, layout.CardsPerPage)
	require.NoError(t, err)

	d := NewDriver(render.New(nil), host, WithGrace(0), WithImageTimeout(10*time.Second))
	res, err := d.PrintAll(context.Background(), pages, "Browser")
	require.NoError(t, err)
	d.Wait()

	b, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
	assert.Zero(t, res.FailedImages)
}
