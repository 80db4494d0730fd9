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
	"os"
)

// Rationalize updates fields based on the values of other fields, after
// flags/env/config file are applied but before Validate runs, mirroring the
// teacher's cfg.Rationalize.
func Rationalize(c *Config) error {
	if c.FileSystem.MountPoint == "" {
		c.FileSystem.MountPoint = defaultMountPoint
	}
	resolved, err := resolvePath(c.FileSystem.MountPoint)
	if err != nil {
		return err
	}
	c.FileSystem.MountPoint = resolved

	if c.FileSystem.Uid < 0 {
		c.FileSystem.Uid = int64(os.Getuid())
	}
	if c.FileSystem.Gid < 0 {
		c.FileSystem.Gid = int64(os.Getgid())
	}

	// debug-mutex implies at least DEBUG-level logging, the same way the
	// teacher escalates severity to TRACE when any debug flag is set.
	if c.Debug.LogMutex && c.Logging.Severity.Rank() > DebugLogSeverity.Rank() {
		c.Logging.Severity = DebugLogSeverity
	}

	return nil
}
