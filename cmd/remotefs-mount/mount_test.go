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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmanuelePietroCometti/remotefs/internal/config"
	"github.com/EmanuelePietroCometti/remotefs/internal/fs"
)

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:8080", serverURL("10.0.0.5:8080"))
}

func TestStopFailsWithoutAMountPoint(t *testing.T) {
	err := stop("")
	assert.Error(t, err)
}

func TestStopFailsWhenNothingIsMounted(t *testing.T) {
	// No real mount exists at this path, so fuse.Unmount is expected to
	// fail; stop surfaces that error rather than swallowing it.
	err := stop(t.TempDir())
	assert.Error(t, err)
}

// startChangeSubscriber is best-effort: an invalid base URL must not panic
// the mount, only log a warning and return without starting a goroutine.
func TestStartChangeSubscriberToleratesBadServerURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cfg := &config.Config{
		Notify: config.NotifyConfig{
			ReconnectMinMs: 1,
			ReconnectMaxMs: 1,
			RenameWindowMs: 1,
		},
	}

	require.NotPanics(t, func() {
		startChangeSubscriber(ctx, "%zz", cfg, fs.Dependencies{})
	})
}
