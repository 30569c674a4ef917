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
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/dropsync/pkg/hub"
	"github.com/carverauto/dropsync/pkg/models"
)

type deviceList struct {
	Devices []hub.DeviceView `json:"devices"`
}

type commandHistory struct {
	DeviceID string            `json:"device_id"`
	Commands []*models.Command `json:"commands"`
}

type messageList struct {
	DeviceID string            `json:"device_id,omitempty"`
	Messages []*models.Message `json:"messages"`
}

type manifest struct {
	PackageID int64                     `json:"package_id"`
	Files     []*models.SyncPackageFile `json:"files"`
}

type auditList struct {
	Events []*models.AuditEvent `json:"events"`
}

// commandParams builds the payload of an admin command. Binary payloads are
// sent base64 encoded; JSON and text are taken verbatim.
func commandParams(f fieldSource) (*models.CommandParameters, error) {
	raw, ok := f.get("parameters")
	if !ok || raw == "" {
		return nil, nil
	}

	params := &models.CommandParameters{ContentType: optional(f, "content_type")}
	if params.ContentType == "" {
		params.ContentType = models.ContentTypeJSON
	}

	if params.ContentType != models.ContentTypeBinary {
		params.Data = []byte(raw)
		return params, nil
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: binary parameters must be base64", models.ErrValidation)
	}

	params.Data = data

	return params, nil
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.hub.ListDevices(r.Context(), queryBool(r, "include_inactive"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deviceList{Devices: devices})
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deviceID, err := required(fields, "device_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reg, err := s.hub.RegisterDevice(r.Context(), deviceID, optional(fields, "name"), optional(fields, "device_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	token, err := s.hub.RotateToken(r.Context(), deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"device_id": deviceID, "token": token})
}

func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	if err := s.hub.RevokeDevice(r.Context(), deviceID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "device_id": deviceID})
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	command, err := required(fields, "command")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	params, err := commandParams(fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	priority, err := intField(fields, "priority", models.PriorityLow)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd, err := s.hub.SendCommand(r.Context(), mux.Vars(r)["device_id"], command, params, priority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}

func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deviceID := mux.Vars(r)["device_id"]

	cmds, err := s.hub.CommandHistory(r.Context(), deviceID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commandHistory{DeviceID: deviceID, Commands: cmds})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, deviceID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msgs, err := s.hub.Messages(r.Context(), models.MessageFilter{
		DeviceID:    deviceID,
		MinSeverity: models.Severity(r.URL.Query().Get("severity")),
		Limit:       limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageList{DeviceID: deviceID, Messages: msgs})
}

func (s *Server) handleDeviceMessages(w http.ResponseWriter, r *http.Request) {
	s.listMessages(w, r, mux.Vars(r)["device_id"])
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.listMessages(w, r, r.URL.Query().Get("device_id"))
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name, err := required(fields, "package_name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	target, err := required(fields, "target_device_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg, err := s.hub.CreatePackage(r.Context(), name, target,
		models.SyncPackageType(optional(fields, "package_type")), optional(fields, "description"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, pkg)
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := models.SyncPackageFilter{DeviceID: query.Get("device_id"), Limit: limit}

	for _, value := range query["status"] {
		for _, raw := range strings.Split(value, ",") {
			status, err := models.ParseSyncPackageStatus(strings.TrimSpace(raw))
			if err != nil {
				s.writeError(w, r, err)
				return
			}

			filter.Statuses = append(filter.Statuses, status)
		}
	}

	pkgs, err := s.hub.ListPackages(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, packageList{DeviceID: filter.DeviceID, Packages: pkgs})
}

func (s *Server) handleAddPackageFile(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

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

	entry, pkg, err := s.hub.AddPackageFile(r.Context(), id, header.Filename, file, optional(fields, "sha256"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"file": entry, "package": pkg})
}

func (s *Server) handlePackageFiles(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	files, err := s.hub.PackageFiles(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, manifest{PackageID: id, Files: files})
}

func (s *Server) handleFailPackage(w http.ResponseWriter, r *http.Request) {
	id, err := packageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg, err := s.hub.FailPackage(r.Context(), id, optional(fields, "reason"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := models.AuditFilter{
		Source:      query.Get("source"),
		EventType:   query.Get("event_type"),
		MinSeverity: models.Severity(query.Get("severity")),
		Limit:       limit,
	}

	if raw := query.Get("since"); raw != "" {
		if filter.Since, err = time.Parse(time.RFC3339, raw); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: since must be RFC 3339", models.ErrValidation))
			return
		}
	}

	events, err := s.hub.AuditEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, auditList{Events: events})
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.SystemStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
