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

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// CommandStatus tracks delivery of a queued command.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusSent      CommandStatus = "sent"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
)

// Command priorities; higher is delivered first.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

const (
	MaxCommandLength       = 256
	MaxCommandParamsLength = 64 * 1024
)

// Supported parameter content types.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// Command is an instruction queued for a single device.
type Command struct {
	ID          int64              `json:"id"`
	DeviceID    string             `json:"device_id"`
	Command     string             `json:"command"`
	Parameters  *CommandParameters `json:"parameters,omitempty"`
	Priority    int                `json:"priority"`
	Status      CommandStatus      `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Result      *string            `json:"result,omitempty"`
}

// CommandParameters is a command payload with a declared content type.
// JSON payloads are kept verbatim; other types travel as base64 on the wire.
type CommandParameters struct {
	ContentType string
	Data        []byte
}

type commandParametersWire struct {
	ContentType string          `json:"content_type"`
	Data        json.RawMessage `json:"data"`
}

// MarshalJSON renders JSON payloads inline and everything else as a string.
func (p CommandParameters) MarshalJSON() ([]byte, error) {
	wire := commandParametersWire{ContentType: p.contentType()}

	switch wire.ContentType {
	case ContentTypeJSON:
		wire.Data = json.RawMessage(p.Data)
	default:
		data, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}

		wire.Data = data
	}

	return json.Marshal(wire)
}

// UnmarshalJSON accepts the wire form produced by MarshalJSON.
func (p *CommandParameters) UnmarshalJSON(b []byte) error {
	var wire commandParametersWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	p.ContentType = wire.ContentType
	if p.ContentType == "" {
		p.ContentType = ContentTypeJSON
	}

	if p.ContentType == ContentTypeJSON {
		p.Data = append([]byte(nil), wire.Data...)
		return nil
	}

	var raw []byte
	if len(wire.Data) > 0 {
		if err := json.Unmarshal(wire.Data, &raw); err != nil {
			return fmt.Errorf("parameters data: %w", err)
		}
	}

	p.Data = raw

	return nil
}

func (p CommandParameters) contentType() string {
	if p.ContentType == "" {
		return ContentTypeJSON
	}

	return p.ContentType
}

// Validate checks the payload against its declared content type.
func (p *CommandParameters) Validate() error {
	if p == nil {
		return nil
	}

	if len(p.Data) > MaxCommandParamsLength {
		return fmt.Errorf("%w: parameters exceed %d bytes", ErrPayloadTooLarge, MaxCommandParamsLength)
	}

	p.ContentType = p.contentType()

	switch p.ContentType {
	case ContentTypeJSON:
		trimmed := bytes.TrimSpace(p.Data)
		if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
			return fmt.Errorf("%w: json parameters must be an object", ErrValidation)
		}

		p.Data = trimmed
	case ContentTypeText:
		if !utf8.Valid(p.Data) {
			return fmt.Errorf("%w: text parameters must be utf-8", ErrValidation)
		}
	case ContentTypeBinary:
	default:
		return fmt.Errorf("%w: unsupported parameters content type %q", ErrValidation, p.ContentType)
	}

	return nil
}

// ValidatePriority checks the compatibility range {1,2,3}.
func ValidatePriority(priority int) error {
	if priority < PriorityLow || priority > PriorityHigh {
		return fmt.Errorf("%w: priority %d out of range [%d,%d]", ErrValidation, priority, PriorityLow, PriorityHigh)
	}

	return nil
}
