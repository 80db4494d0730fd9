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

import "fmt"

// Validate returns a non-nil error if c is not a usable configuration,
// mirroring the teacher's cfg.ValidateConfig: one sub-validator per section.
func Validate(c *Config) error {
	if err := validateRetry(&c.Retry); err != nil {
		return fmt.Errorf("retry config: %w", err)
	}
	if err := validateMetadataCache(&c.MetadataCache); err != nil {
		return fmt.Errorf("metadata-cache config: %w", err)
	}
	if err := validateNotify(&c.Notify); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	if err := validateLogRotate(&c.Logging.LogRotate); err != nil {
		return fmt.Errorf("log-rotate config: %w", err)
	}
	if c.FileSystem.MountPoint == "" {
		return fmt.Errorf("file-system config: mount-point must not be empty")
	}
	return nil
}

func validateRetry(r *RetryConfig) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.MaxElapsedSecs < 0 {
		return fmt.Errorf("max-elapsed-secs must not be negative, got %d", r.MaxElapsedSecs)
	}
	if r.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request-timeout-secs must be positive, got %d", r.RequestTimeoutSecs)
	}
	return nil
}

func validateMetadataCache(m *MetadataCacheConfig) error {
	if m.AttrTtlSecs < 0 {
		return fmt.Errorf("attr-ttl-secs must not be negative, got %d", m.AttrTtlSecs)
	}
	if m.DirTtlSecs < 0 {
		return fmt.Errorf("dir-ttl-secs must not be negative, got %d", m.DirTtlSecs)
	}
	return nil
}

func validateNotify(n *NotifyConfig) error {
	if n.ReconnectMinMs <= 0 {
		return fmt.Errorf("reconnect-min-ms must be positive, got %d", n.ReconnectMinMs)
	}
	if n.ReconnectMaxMs < n.ReconnectMinMs {
		return fmt.Errorf("reconnect-max-ms (%d) must not be less than reconnect-min-ms (%d)", n.ReconnectMaxMs, n.ReconnectMinMs)
	}
	if n.RenameWindowMs < 0 {
		return fmt.Errorf("rename-window-ms must not be negative, got %d", n.RenameWindowMs)
	}
	return nil
}

func validateLogRotate(l *LogRotateLoggingConfig) error {
	if l.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb must be at least 1")
	}
	if l.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count must be 0 (retain all) or positive")
	}
	return nil
}
