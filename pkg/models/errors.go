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
	"fmt"
)

var (

	// Error kinds surfaced across the hub boundary.

	ErrUnauthorized      = errors.New("unauthorized device or invalid token")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrRateLimited       = errors.New("too many requests")
	ErrStorage           = errors.New("storage failure")
	ErrInvalidTransition = errors.New("invalid state transition")

	// Validation refinements.

	ErrQueueFull       = fmt.Errorf("%w: command queue full", ErrValidation)
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrValidation)
	ErrTokenConflict   = fmt.Errorf("%w: token already assigned to another device", ErrValidation)
	ErrDuplicateFile   = fmt.Errorf("%w: file already staged in package", ErrValidation)

	// Not-found refinements.

	ErrDeviceNotFound      = fmt.Errorf("device %w", ErrNotFound)
	ErrCommandNotFound     = fmt.Errorf("command %w", ErrNotFound)
	ErrSyncPackageNotFound = fmt.Errorf("sync package %w", ErrNotFound)
	ErrFileNotFound        = fmt.Errorf("file %w", ErrNotFound)
)
