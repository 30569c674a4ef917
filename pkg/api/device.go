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
	"net/http"
	"time"

	"github.com/carverauto/dropsync/pkg/models"
)

type pollResponse struct {
	CommandID  int64                     `json:"command_id"`
	Command    string                    `json:"command"`
	Parameters *models.CommandParameters `json:"parameters,omitempty"`
	Priority   int                       `json:"priority"`
	Timestamp  time.Time                 `json:"timestamp"`
}

type commandAck struct {
	Status    models.CommandStatus `json:"status"`
	CommandID int64                `json:"command_id"`
}

type messageAck struct {
	Status    string    `json:"status"`
	MessageID int64     `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	res, err := s.hub.Ping(r.Context(), s.caller(r, nil))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePollCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.hub.PollCommand(r.Context(), s.caller(r, nil))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if cmd == nil {
		writeJSON(w, http.StatusOK, map[string]string{"command": "none", "message": "No pending commands"})
		return
	}

	writeJSON(w, http.StatusOK, pollResponse{
		CommandID:  cmd.ID,
		Command:    cmd.Command,
		Parameters: cmd.Parameters,
		Priority:   cmd.Priority,
		Timestamp:  cmd.Timestamp,
	})
}

func (s *Server) handleCompleteCommand(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := required(fields, "command_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	commandID, err := idField(raw, "command_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var result *string
	if v, ok := fields.get("result"); ok {
		result = &v
	}

	cmd, err := s.hub.CompleteCommand(r.Context(), s.caller(r, fields), commandID, result)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commandAck{Status: cmd.Status, CommandID: cmd.ID})
}

func (s *Server) handleFailCommand(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := required(fields, "command_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	commandID, err := idField(raw, "command_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd, err := s.hub.FailCommand(r.Context(), s.caller(r, fields), commandID, optional(fields, "reason", "error"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commandAck{Status: cmd.Status, CommandID: cmd.ID})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.hub.PostMessage(r.Context(), s.caller(r, fields),
		optional(fields, "msg_type", "type"),
		optional(fields, "content"),
		optional(fields, "severity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageAck{Status: "logged", MessageID: msg.ID, Timestamp: msg.Timestamp})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.hub.Heartbeat(r.Context(), s.caller(r, fields),
		optional(fields, "status"),
		optional(fields, "firmware_version"),
		optional(fields, "ip_address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.hub.DeviceStatus(r.Context(), s.caller(r, nil))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
