/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"fmt"
	"html/template"

	"cartonclub/internal/layout"
)

var stylesheet = fmt.Sprintf(`
@page { size: A4; margin: 0; }
body { margin: 0; padding: 0; font-family: system-ui, -apple-system, sans-serif; }
.page {
  width: %[1]gmm; height: %[2]gmm;
  display: flex; flex-direction: column;
  background: white;
  position: relative;
}
.page:not(:last-child) { page-break-after: always; }
.page:last-child { page-break-after: avoid; break-after: avoid; }
html, body { height: auto; overflow: hidden; }
.cards-grid {
  display: grid;
  grid-template-columns: repeat(%[5]d, %[3]gmm);
  grid-template-rows: repeat(%[6]d, %[4]gmm);
  place-content: center;
  width: 100%%; height: 100%%;
}
.card-slot { position: relative; box-sizing: border-box; overflow: hidden; }
.card-slot img { width: 100%%; height: 100%%; object-fit: cover; }
.card-placeholder {
  display: flex; align-items: center; justify-content: center;
  width: 100%%; height: 100%%;
  padding: 12px; box-sizing: border-box;
  background-color: #f3f4f6; border: 1px solid #e5e7eb;
}
.card-placeholder span { color: #6b7280; font-size: 12px; word-break: break-all; text-align: center; }
.empty-slot { border: 1px solid #f3f4f6; }
.landmarks { position: absolute; inset: 0; pointer-events: none; }
.landmarks svg { width: 100%%; height: 100%%; }
@media print {
  body { -webkit-print-color-adjust: exact; print-color-adjust: exact; }
  body > .page:last-child { page-break-after: avoid !important; break-after: avoid !important; }
}
`, layout.PageWidthMM, layout.PageHeightMM, layout.CardWidthMM, layout.CardHeightMM, layout.Columns, layout.Rows)

var docTemplate = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.Style}}</style>
</head>
<body>
{{range .Pages}}<div class="page" data-page="{{.Number}}">
<div class="cards-grid">
{{range .Slots}}{{if .Empty}}<div class="card-slot empty-slot"></div>
{{else if .ImageURL}}<div class="card-slot"><img src="{{.ImageURL}}" alt="{{.Alt}}" /></div>
{{else}}<div class="card-slot"><div class="card-placeholder"><span>{{.Label}}</span></div></div>
{{end}}{{end}}</div>
<div class="landmarks">{{.Landmarks}}</div>
</div>
{{end}}</body>
</html>
`))
