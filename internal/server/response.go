/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse wraps returned data together with any operator notices
// raised while serving the request.
type SuccessResponse struct {
	Data    any             `json:"data"`
	Notices []noticeMessage `json:"notices,omitempty"`
}

type noticeMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

func (s *Server) success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Data: data, Notices: s.drainNotices()})
}

func (s *Server) ok(w http.ResponseWriter, data any)      { s.success(w, http.StatusOK, data) }
func (s *Server) created(w http.ResponseWriter, data any) { s.success(w, http.StatusCreated, data) }

func (s *Server) drainNotices() []noticeMessage {
	if s.notices == nil {
		return nil
	}
	var out []noticeMessage
	for _, n := range s.notices.Drain() {
		out = append(out, noticeMessage{Level: n.Level.String(), Message: n.String()})
	}
	return out
}

func fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: err.Error(), Code: status})
}

func badRequest(w http.ResponseWriter, err error) { fail(w, http.StatusBadRequest, err) }
func notFound(w http.ResponseWriter, err error)   { fail(w, http.StatusNotFound, err) }
func internal(w http.ResponseWriter, err error)   { fail(w, http.StatusInternalServerError, err) }
