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

package db

import (
	"errors"
	"fmt"

	"github.com/carverauto/dropsync/pkg/models"
)

var (

	// Core database errors; both wrap models.ErrStorage.

	ErrDatabaseError = fmt.Errorf("database error: %w", models.ErrStorage)
	ErrFailedOpenDB  = fmt.Errorf("failed to open database: %w", models.ErrStorage)

	// Operation errors.

	ErrFailedToScan   = errors.New("failed to scan")
	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToInit   = errors.New("failed to initialize schema")

	// Argument validation.

	ErrDeviceNil       = errors.New("device is nil")
	ErrCommandNil      = errors.New("command is nil")
	ErrSyncPackageNil  = errors.New("sync package is nil")
	ErrPackageFileNil  = errors.New("sync package file is nil")
	ErrFileSyncNil     = errors.New("file sync record is nil")
	ErrMessageNil      = errors.New("message is nil")
	ErrAuditEventNil   = errors.New("audit event is nil")
	ErrTransitionEmpty = errors.New("transition has no source states")
)

// wrapDB tags an unexpected driver error as a storage failure.
func wrapDB(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDatabaseError, op, err)
}
