// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOctalUnmarshalText(t *testing.T) {
	var o Octal
	require.NoError(t, o.UnmarshalText([]byte("644")))
	assert.EqualValues(t, 0644, o)
}

func TestOctalUnmarshalTextRejectsNonOctal(t *testing.T) {
	var o Octal
	assert.Error(t, o.UnmarshalText([]byte("999")))
}

func TestLogSeverityUnmarshalTextNormalizesCase(t *testing.T) {
	var s LogSeverity
	require.NoError(t, s.UnmarshalText([]byte("debug")))
	assert.Equal(t, DebugLogSeverity, s)
}

func TestLogSeverityUnmarshalTextRejectsUnknown(t *testing.T) {
	var s LogSeverity
	assert.Error(t, s.UnmarshalText([]byte("VERBOSE")))
}

func TestLogSeverityRankOrdering(t *testing.T) {
	assert.Less(t, TraceLogSeverity.Rank(), DebugLogSeverity.Rank())
	assert.Less(t, DebugLogSeverity.Rank(), InfoLogSeverity.Rank())
	assert.Less(t, WarningLogSeverity.Rank(), ErrorLogSeverity.Rank())
	assert.Equal(t, -1, LogSeverity("BOGUS").Rank())
}

func TestDefaultConfigValidates(t *testing.T) {
	c := Default()
	require.NoError(t, Rationalize(&c))
	assert.NoError(t, Validate(&c))
}

func TestRationalizeResolvesUidGidWhenUnset(t *testing.T) {
	c := Default()
	require.NoError(t, Rationalize(&c))
	assert.GreaterOrEqual(t, c.FileSystem.Uid, int64(0))
	assert.GreaterOrEqual(t, c.FileSystem.Gid, int64(0))
}

func TestRationalizeLeavesExplicitUidGidAlone(t *testing.T) {
	c := Default()
	c.FileSystem.Uid = 501
	c.FileSystem.Gid = 20
	require.NoError(t, Rationalize(&c))
	assert.EqualValues(t, 501, c.FileSystem.Uid)
	assert.EqualValues(t, 20, c.FileSystem.Gid)
}

func TestRationalizeDebugMutexEscalatesSeverity(t *testing.T) {
	c := Default()
	c.Debug.LogMutex = true
	require.NoError(t, Rationalize(&c))
	assert.Equal(t, DebugLogSeverity, c.Logging.Severity)
}

func TestValidateRejectsZeroMaxAttempts(t *testing.T) {
	c := Default()
	c.Retry.MaxAttempts = 0
	assert.Error(t, Validate(&c))
}

func TestValidateRejectsReconnectMaxBelowMin(t *testing.T) {
	c := Default()
	c.Notify.ReconnectMaxMs = 10
	c.Notify.ReconnectMinMs = 200
	assert.Error(t, Validate(&c))
}

func TestValidateRejectsEmptyMountPoint(t *testing.T) {
	c := Default()
	c.FileSystem.MountPoint = ""
	assert.Error(t, Validate(&c))
}

func TestValidateRejectsBadLogRotate(t *testing.T) {
	c := Default()
	c.Logging.LogRotate.MaxFileSizeMb = 0
	assert.Error(t, Validate(&c))
}
