/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/carverauto/dropsync/pkg/models"
)

const (
	maxFormBody     = 1 << 20
	multipartMemory = 8 << 20
)

type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto its HTTP status and the message shown
// to the client. Storage failures never leak their cause.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden, "Unauthorized device or invalid token"
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.As(err, &maxBytes), errors.Is(err, models.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}

	writeJSON(w, status, errorResponse{Message: message, Status: status})
}

// fieldSource reads request fields independent of the body encoding.
type fieldSource interface {
	get(name string) (string, bool)
}

type formFields map[string][]string

func (f formFields) get(name string) (string, bool) {
	vals, ok := f[name]
	if !ok || len(vals) == 0 {
		return "", false
	}

	return vals[0], true
}

// jsonFields returns string members unquoted and any other member as its
// raw JSON text.
type jsonFields map[string]json.RawMessage

func (f jsonFields) get(name string) (string, bool) {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	return string(raw), true
}

// readFields decodes a JSON object, a multipart form or a urlencoded form.
// Query parameters are merged into the form variants.
func readFields(w http.ResponseWriter, r *http.Request) (fieldSource, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)

	switch mediaType {
	case "application/json":
		fields := jsonFields{}

		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
			return nil, badBody(err)
		}

		return fields, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, badBody(err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, badBody(err)
		}
	}

	return formFields(r.Form), nil
}

func badBody(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return fmt.Errorf("%w: request body exceeds %d bytes", models.ErrPayloadTooLarge, maxBytes.Limit)
	}

	return fmt.Errorf("%w: malformed request body: %w", models.ErrValidation, err)
}

func required(f fieldSource, name string) (string, error) {
	v, ok := f.get(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s is required", models.ErrValidation, name)
	}

	return v, nil
}

func optional(f fieldSource, names ...string) string {
	for _, name := range names {
		if v, ok := f.get(name); ok {
			return v
		}
	}

	return ""
}

func intField(f fieldSource, name string, def int) (int, error) {
	v, ok := f.get(name)
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, name)
	}

	return n, nil
}

func idField(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrValidation, name)
	}

	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	return intField(formFields(r.URL.Query()), name, 0)
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))

	return err == nil && v
}
