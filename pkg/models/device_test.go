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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIsOnline(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-4 * time.Minute)
	edge := now.Add(-5 * time.Minute)
	stale := now.Add(-6 * time.Minute)

	assert.True(t, (&Device{LastSeen: &recent}).IsOnline(now, 5*time.Minute))
	assert.True(t, (&Device{LastSeen: &edge}).IsOnline(now, 5*time.Minute))
	assert.False(t, (&Device{LastSeen: &stale}).IsOnline(now, 5*time.Minute))
	assert.False(t, (&Device{}).IsOnline(now, 5*time.Minute))

	var nilDevice *Device
	assert.False(t, nilDevice.IsOnline(now, time.Minute))
}

func TestValidateDeviceID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"esp001", "a", "node-7.garage_2"} {
		require.NoError(t, ValidateDeviceID(id), id)
	}

	for _, id := range []string{"", "-lead", "../x", "a/b", "has space"} {
		require.ErrorIs(t, ValidateDeviceID(id), ErrValidation, id)
	}
}

func TestParseReportedStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseReportedStatus("")
	require.NoError(t, err)
	assert.Equal(t, DeviceStatusOnline, status)

	status, err = ParseReportedStatus("error")
	require.NoError(t, err)
	assert.Equal(t, DeviceStatusError, status)

	_, err = ParseReportedStatus("disabled")
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseReportedStatus("sleeping")
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	s, err := ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, SeverityInfo, s)

	_, err = ParseSeverity("fatal")
	require.ErrorIs(t, err, ErrValidation)

	assert.True(t, SeverityCritical.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
}
