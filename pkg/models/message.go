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

import "time"

// Message is a status, log or diagnostic line pushed by a device.
type Message struct {
	ID           int64     `json:"id"`
	DeviceID     string    `json:"device_id"`
	MessageType  string    `json:"message_type"`
	Content      string    `json:"content"`
	Severity     Severity  `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// MessageFilter narrows message listings.
type MessageFilter struct {
	DeviceID    string
	MinSeverity Severity
	Limit       int
}

// DefaultMessageType is used when a device omits the type.
const DefaultMessageType = "status"

// MaxMessageContentLength bounds a single message body.
const MaxMessageContentLength = 16 * 1024
