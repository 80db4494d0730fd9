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
	"fmt"

	"github.com/spf13/pflag"
)

// FromFlagSet builds a Config by reading each flag BindFlags registered,
// after Cobra has parsed argv. Values are read directly off flagSet rather
// than through viper.Unmarshal's struct-tag matching, since the nested
// Config shape and viper's flat BindPFlag keys don't line up cleanly
// without a decoder hook the teacher's own generated code doesn't actually
// carry reliably either (see DESIGN.md).
func FromFlagSet(flagSet *pflag.FlagSet) (Config, error) {
	var c Config
	var firstErr error
	str := func(name string) string {
		v, err := flagSet.GetString(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flag %q: %w", name, err)
		}
		return v
	}
	i := func(name string) int {
		v, err := flagSet.GetInt(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flag %q: %w", name, err)
		}
		return v
	}
	i64 := func(name string) int64 {
		v, err := flagSet.GetInt64(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flag %q: %w", name, err)
		}
		return v
	}
	b := func(name string) bool {
		v, err := flagSet.GetBool(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flag %q: %w", name, err)
		}
		return v
	}

	c.FileSystem = FileSystemConfig{
		MountPoint: str("mount-point"),
		FileMode:   Octal(i("file-mode")),
		DirMode:    Octal(i("dir-mode")),
		Uid:        i64("uid"),
		Gid:        i64("gid"),
	}
	c.Retry = RetryConfig{
		MaxAttempts:        i("retry-max-attempts"),
		MaxElapsedSecs:     i64("retry-max-elapsed-secs"),
		RequestTimeoutSecs: i64("request-timeout-secs"),
	}
	c.MetadataCache = MetadataCacheConfig{
		AttrTtlSecs: i64("attr-ttl-secs"),
		DirTtlSecs:  i64("dir-ttl-secs"),
	}
	c.Notify = NotifyConfig{
		ReconnectMinMs: i64("notify-reconnect-min-ms"),
		ReconnectMaxMs: i64("notify-reconnect-max-ms"),
		RenameWindowMs: i64("notify-rename-window-ms"),
	}
	var severity LogSeverity
	if err := severity.UnmarshalText([]byte(str("log-severity"))); err != nil && firstErr == nil {
		firstErr = err
	}
	c.Logging = LoggingConfig{
		Severity: severity,
		LogFile:  ResolvedPath(str("log-file")),
		LogRotate: LogRotateLoggingConfig{
			MaxFileSizeMb:   i("log-rotate-max-file-size-mb"),
			BackupFileCount: i("log-rotate-backup-file-count"),
			Compress:        b("log-rotate-compress"),
		},
	}
	c.Metrics = MetricsConfig{
		Enabled:    b("metrics-enabled"),
		ListenAddr: str("metrics-listen-addr"),
	}
	c.Debug = DebugConfig{
		LogMutex: b("debug-mutex"),
	}

	if firstErr != nil {
		return Config{}, firstErr
	}
	return c, nil
}
