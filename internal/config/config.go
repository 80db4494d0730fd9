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

// Package config is the declarative configuration surface of the mount
// command: a Config struct, flag bindings, defaulting, rationalization, and
// validation, in the shape of the teacher's cfg package.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full, resolved configuration for one mount.
type Config struct {
	FileSystem FileSystemConfig `yaml:"file-system"`

	Retry RetryConfig `yaml:"retry"`

	MetadataCache MetadataCacheConfig `yaml:"metadata-cache"`

	Notify NotifyConfig `yaml:"notify"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`

	Debug DebugConfig `yaml:"debug"`
}

// FileSystemConfig controls the mount point and inode attribute rendering.
type FileSystemConfig struct {
	MountPoint string `yaml:"mount-point"`

	FileMode Octal `yaml:"file-mode"`

	DirMode Octal `yaml:"dir-mode"`

	Uid int64 `yaml:"uid"`

	Gid int64 `yaml:"gid"`
}

// RetryConfig controls internal/remote.Client's idempotent-call retry
// policy, per spec §4.2.
type RetryConfig struct {
	MaxAttempts int `yaml:"max-attempts"`

	MaxElapsedSecs int64 `yaml:"max-elapsed-secs"`

	RequestTimeoutSecs int64 `yaml:"request-timeout-secs"`
}

// MetadataCacheConfig controls internal/cache's attribute and directory
// entry TTLs, per spec §3.
type MetadataCacheConfig struct {
	AttrTtlSecs int64 `yaml:"attr-ttl-secs"`

	DirTtlSecs int64 `yaml:"dir-ttl-secs"`
}

// NotifyConfig controls internal/notify's reconnect backoff and rename
// correlation window, per spec §4.6.
type NotifyConfig struct {
	ReconnectMinMs int64 `yaml:"reconnect-min-ms"`

	ReconnectMaxMs int64 `yaml:"reconnect-max-ms"`

	RenameWindowMs int64 `yaml:"rename-window-ms"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	LogFile ResolvedPath `yaml:"log-file"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig mirrors lumberjack's rotation knobs.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

// MetricsConfig controls internal/metrics' Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	ListenAddr string `yaml:"listen-addr"`
}

// DebugConfig gates extra internal diagnostics.
type DebugConfig struct {
	LogMutex bool `yaml:"log-mutex"`
}

// AttrTTL returns the configured attribute cache TTL as a time.Duration.
func (c *MetadataCacheConfig) AttrTTL() time.Duration {
	return time.Duration(c.AttrTtlSecs) * time.Second
}

// DirTTL returns the configured directory cache TTL as a time.Duration.
func (c *MetadataCacheConfig) DirTTL() time.Duration {
	return time.Duration(c.DirTtlSecs) * time.Second
}

// BindFlags registers every flag this command accepts on flagSet and wires
// each one to the matching viper key, in the style of the teacher's
// generated cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string) error {
		return viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("mount-point", "", "Local directory to mount onto. Defaults to ~/mnt/remote-fs.")
	if err := bind("mount-point"); err != nil {
		return err
	}

	flagSet.Int("file-mode", 0644, "Permission bits for files, stored in the config. Reported file modes come from the server; this value is not applied. Parsed as an integer: write octal with a leading 0.")
	if err := bind("file-mode"); err != nil {
		return err
	}

	flagSet.Int("dir-mode", 0755, "Permission bits for directories, stored in the config. Reported directory modes come from the server; this value is not applied. Parsed as an integer: write octal with a leading 0.")
	if err := bind("dir-mode"); err != nil {
		return err
	}

	flagSet.Int64("uid", -1, "UID reported for every inode. -1 means the mounting process's UID.")
	if err := bind("uid"); err != nil {
		return err
	}

	flagSet.Int64("gid", -1, "GID reported for every inode. -1 means the mounting process's GID.")
	if err := bind("gid"); err != nil {
		return err
	}

	flagSet.Int("retry-max-attempts", 3, "Maximum attempts for an idempotent remote call, including the first.")
	if err := bind("retry-max-attempts"); err != nil {
		return err
	}

	flagSet.Int64("retry-max-elapsed-secs", 10, "Wall-clock cap, in seconds, on retrying a single idempotent call.")
	if err := bind("retry-max-elapsed-secs"); err != nil {
		return err
	}

	flagSet.Int64("request-timeout-secs", 30, "Per-request timeout, in seconds, for a single HTTP round trip.")
	if err := bind("request-timeout-secs"); err != nil {
		return err
	}

	flagSet.Int64("attr-ttl-secs", 2, "TTL, in seconds, for cached inode attributes.")
	if err := bind("attr-ttl-secs"); err != nil {
		return err
	}

	flagSet.Int64("dir-ttl-secs", 1, "TTL, in seconds, for cached directory listings.")
	if err := bind("dir-ttl-secs"); err != nil {
		return err
	}

	flagSet.Int64("notify-reconnect-min-ms", 200, "Minimum backoff, in milliseconds, before reconnecting the change subscriber.")
	if err := bind("notify-reconnect-min-ms"); err != nil {
		return err
	}

	flagSet.Int64("notify-reconnect-max-ms", 30000, "Maximum backoff, in milliseconds, before reconnecting the change subscriber.")
	if err := bind("notify-reconnect-max-ms"); err != nil {
		return err
	}

	flagSet.Int64("notify-rename-window-ms", 200, "Window, in milliseconds, during which an unlink waits for a correlating add before being treated as a genuine delete.")
	if err := bind("notify-rename-window-ms"); err != nil {
		return err
	}

	flagSet.String("log-severity", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := bind("log-severity"); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to the log file. Empty means stdout.")
	if err := bind("log-file"); err != nil {
		return err
	}

	flagSet.Int("log-rotate-max-file-size-mb", 512, "Maximum size, in MiB, of a log file before it is rotated.")
	if err := bind("log-rotate-max-file-size-mb"); err != nil {
		return err
	}

	flagSet.Int("log-rotate-backup-file-count", 10, "Number of rotated log files to retain. 0 retains all.")
	if err := bind("log-rotate-backup-file-count"); err != nil {
		return err
	}

	flagSet.Bool("log-rotate-compress", true, "Whether rotated log files are gzip-compressed.")
	if err := bind("log-rotate-compress"); err != nil {
		return err
	}

	flagSet.Bool("metrics-enabled", false, "Serve Prometheus metrics.")
	if err := bind("metrics-enabled"); err != nil {
		return err
	}

	flagSet.String("metrics-listen-addr", "127.0.0.1:9100", "Address the Prometheus metrics endpoint listens on.")
	if err := bind("metrics-listen-addr"); err != nil {
		return err
	}

	flagSet.Bool("debug-mutex", false, "Raise the log severity to at least DEBUG. Mutex hold times are not measured or logged.")
	if err := bind("debug-mutex"); err != nil {
		return err
	}

	return nil
}
