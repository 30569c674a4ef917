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

package audit

//go:generate mockgen -destination=mock_audit.go -package=audit github.com/carverauto/dropsync/pkg/audit Publisher,Emitter

import (
	"context"

	"github.com/carverauto/dropsync/pkg/models"
)

// Publisher mirrors recorded events to an external bus.
type Publisher interface {
	PublishAuditEvent(ctx context.Context, event *models.AuditEvent) (uint64, error)
}

// Emitter appends audit events built from their parts. *Recorder implements it.
type Emitter interface {
	Emit(ctx context.Context, eventType, source string, severity models.Severity, message string, payload any) error
}
