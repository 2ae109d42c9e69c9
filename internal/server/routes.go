/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.version)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.listCollections)
			r.Post("/", s.createCollection)
			r.Get("/focused", s.focusedCollection)
			r.Put("/focus", s.focusCollection)
			r.Get("/{id}", s.getCollection)
			r.Put("/{id}", s.updateCollection)
			r.Patch("/{id}", s.renameCollection)
			r.Delete("/{id}", s.deleteCollection)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Post("/", s.addCard)
			r.Get("/{cardID}/quantity", s.cardQuantity)
			r.Delete("/{cardID}", s.removeCard)
		})

		r.Get("/search", s.searchFiles)
		r.Get("/folders", s.listFolders)
		r.Get("/pages", s.listPages)
		r.Get("/print.html", s.printDocument)
		r.Post("/print", s.print)
		r.Get("/export", s.export)
		r.Post("/import", s.importCollection)
		r.Get("/images/{id}", s.image)
	})
}
