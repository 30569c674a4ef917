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

package filesync

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carverauto/dropsync/pkg/models"
)

const (
	maxFilenameLength = 255
	packagesDir       = "packages"
	deviceDirPrefix   = "device-"
	tempPattern       = ".partial-*"
)

// ValidateFilename accepts a single path element that stays inside the
// directory it is joined to. Hidden names are reserved for partial writes.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: filename is required", models.ErrValidation)
	case len(name) > maxFilenameLength:
		return fmt.Errorf("%w: filename exceeds %d bytes", models.ErrValidation, maxFilenameLength)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: filename %q contains a path separator", models.ErrValidation, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: filename %q is hidden or relative", models.ErrValidation, name)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: filename %q is not a plain name", models.ErrValidation, name)
	}

	return nil
}

func deviceDir(root, deviceID string) string {
	return filepath.Join(root, deviceDirPrefix+deviceID)
}

func packageDir(root string, packageID int64) string {
	return filepath.Join(root, packagesDir, strconv.FormatInt(packageID, 10))
}
