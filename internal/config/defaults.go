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

const defaultMountPoint = "~/mnt/remote-fs"

// Default returns the configuration used before flags/env/config file are
// applied, matching spec §6's "default mount point is ~/mnt/remote-fs" and
// spec §4.2/§4.6's named retry and backoff defaults.
func Default() Config {
	return Config{
		FileSystem: FileSystemConfig{
			MountPoint: defaultMountPoint,
			FileMode:   0644,
			DirMode:    0755,
			Uid:        -1,
			Gid:        -1,
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			MaxElapsedSecs:     10,
			RequestTimeoutSecs: 30,
		},
		MetadataCache: MetadataCacheConfig{
			AttrTtlSecs: 2,
			DirTtlSecs:  1,
		},
		Notify: NotifyConfig{
			ReconnectMinMs: 200,
			ReconnectMaxMs: 30000,
			RenameWindowMs: 200,
		},
		Logging: LoggingConfig{
			Severity: InfoLogSeverity,
			LogRotate: LogRotateLoggingConfig{
				MaxFileSizeMb:   512,
				BackupFileCount: 10,
				Compress:        true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9100",
		},
	}
}
