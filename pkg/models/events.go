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
	"errors"
	"time"
)

var (
	errNATSURLRequired      = errors.New("nats url is required")
	errNATSTLSPairRequired  = errors.New("nats tls cert_file and key_file must be set together")
	errSubjectPrefixInvalid = errors.New("events subject_prefix must not contain wildcards")
)

// NATSConfig configures NATS connectivity.
type NATSConfig struct {
	URL       string         `json:"url"`
	Domain    string         `json:"domain,omitempty"`
	CredsFile string         `json:"creds_file,omitempty"`
	TLS       *NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig holds optional client TLS material.
type NATSTLSConfig struct {
	CAFile     string `json:"ca_file,omitempty"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	ServerName string `json:"server_name,omitempty"`
}

// Validate ensures the NATS configuration is valid.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURLRequired
	}

	if c.TLS != nil && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errNATSTLSPairRequired
	}

	return nil
}

// EventsConfig configures the JetStream mirror of the audit trail.
type EventsConfig struct {
	Enabled       bool   `json:"enabled"`
	StreamName    string `json:"stream_name"`
	SubjectPrefix string `json:"subject_prefix"`
}

// Validate fills defaults for an enabled mirror.
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "DROPSYNC_AUDIT"
	}

	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "dropsync.audit"
	}

	for _, r := range c.SubjectPrefix {
		if r == '*' || r == '>' || r == ' ' {
			return errSubjectPrefixInvalid
		}
	}

	return nil
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}
