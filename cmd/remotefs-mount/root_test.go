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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelePietroCometti/remotefs/internal/config"
)

func TestCobraArgsNumInRange(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{name: "no args", args: nil, expectError: true},
		{name: "one arg is okay", args: []string{"10.0.0.5"}, expectError: false},
		{name: "two args is okay", args: []string{"10.0.0.5", "daemon"}, expectError: false},
		{name: "too many args", args: []string{"10.0.0.5", "daemon", "extra"}, expectError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := newRootCmd(func(args []string, cfg *config.Config) error { return nil })
			require.NoError(t, err)
			cmd.SetArgs(tc.args)

			err = cmd.Execute()

			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRootCmdPassesResolvedConfigAndArgsToRunFn(t *testing.T) {
	var gotArgs []string
	var gotCfg *config.Config
	cmd, err := newRootCmd(func(args []string, cfg *config.Config) error {
		gotArgs = args
		gotCfg = cfg
		return nil
	})
	require.NoError(t, err)
	cmd.SetArgs([]string{"10.0.0.5", "daemon"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, gotCfg)
	assert.Equal(t, []string{"10.0.0.5", "daemon"}, gotArgs)
	// Rationalize fills in a mount point default when none is passed.
	assert.NotEmpty(t, gotCfg.FileSystem.MountPoint)
	assert.Equal(t, 3, gotCfg.Retry.MaxAttempts)
}

func TestRootCmdPropagatesRunFnError(t *testing.T) {
	cmd, err := newRootCmd(func(args []string, cfg *config.Config) error {
		return assert.AnError
	})
	require.NoError(t, err)
	cmd.SetArgs([]string{"10.0.0.5"})

	assert.ErrorIs(t, cmd.Execute(), assert.AnError)
}

func TestRootCmdRejectsInvalidLogSeverity(t *testing.T) {
	cmd, err := newRootCmd(func(args []string, cfg *config.Config) error { return nil })
	require.NoError(t, err)
	cmd.SetArgs([]string{"10.0.0.5", "--log-severity", "NOT_A_LEVEL"})

	assert.Error(t, cmd.Execute())
}
