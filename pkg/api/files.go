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
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/carverauto/dropsync/pkg/models"
)

type packageList struct {
	DeviceID string                `json:"device_id,omitempty"`
	Packages []*models.SyncPackage `json:"packages"`
}

type fileList struct {
	DeviceID  string              `json:"device_id"`
	FileCount int                 `json:"file_count"`
	Files     []models.DeviceFile `json:"files"`
}

type syncHistory struct {
	DeviceID    string                   `json:"device_id"`
	SyncHistory []*models.FileSyncRecord `json:"sync_history"`
}

func packageID(r *http.Request) (int64, error) {
	return idField(mux.Vars(r)["package_id"], "package_id")
}

func (s *Server) handleStagedPackages(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r, nil)

	pkgs, err := s.hub.ListStagedPackages(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, packageList{DeviceID: caller.DeviceID, Packages: pkgs})
}

func (s *Server) handleDownloadPackage(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := packageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg, err := s.hub.DownloadPackage(r.Context(), s.caller(r, fields), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       pkg.Status,
		"package_id":   pkg.ID,
		"package_name": pkg.PackageName,
	})
}

func (s *Server) handleFetchPackageFile(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, entry, err := s.hub.FetchPackageFile(r.Context(), s.caller(r, nil), id, mux.Vars(r)["filename"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(entry.Filename)))
	w.Header().Set("X-Content-SHA256", entry.SHA256)

	http.ServeContent(w, r, entry.Filename, entry.AddedAt, f)
}

// parseUpload reads a multipart body whose "file" part carries at most
// maxUpload bytes. The caller removes the temporary form files.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (fieldSource, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("%w: multipart/form-data body required", models.ErrValidation)
		}

		return nil, badBody(err)
	}

	return formFields(r.Form), nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fields, err := s.parseUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: file part is required", models.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	syncType, err := models.ParseSyncType(optional(fields, "sync_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.hub.UploadFile(r.Context(), s.caller(r, fields), header.Filename, file, syncType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "uploaded",
		"device_id": rec.DeviceID,
		"filename":  rec.Filename,
		"size":      rec.FileSize,
		"file_hash": rec.FileHash,
		"sync_id":   rec.ID,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r, nil)

	files, err := s.hub.ListFiles(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, fileList{DeviceID: caller.DeviceID, FileCount: len(files), Files: files})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.hub.DeleteFile(r.Context(), s.caller(r, nil), mux.Vars(r)["filename"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": rec.Filename})
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	caller := s.caller(r, nil)

	records, err := s.hub.SyncHistory(r.Context(), caller, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, syncHistory{DeviceID: caller.DeviceID, SyncHistory: records})
}
