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

// Package logger provides the structured logger used throughout the
// mount process: a small set of package-level Tracef/Debugf/.../Errorf
// functions backed by log/slog, configurable to either the TRACE-DEBUG-INFO
// ladder this project's config package uses or to an OFF severity that
// silences everything.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/EmanuelePietroCometti/remotefs/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels below slog.LevelDebug (TRACE) and above slog.LevelError
// (OFF, used only as a filter floor — nothing is ever logged "at" OFF).
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = 12
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

var (
	mu                   sync.Mutex
	programLevel         = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  programLevel,
		writer: os.Stdout,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stdout, programLevel, ""))
	closer        io.Closer
)

// loggerFactory owns the sink a logger writes to, so Init can swap it out
// (e.g. to a lumberjack-backed async writer) without callers re-fetching a
// *slog.Logger.
type loggerFactory struct {
	format string
	level  *slog.LevelVar
	writer io.Writer
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &lineHandler{format: f.format, prefix: prefix, level: level, w: w}
}

// lineHandler renders gcsfuse's historical single-line log shapes —
// time="..." severity=LEVEL message="..." for text,
// {"timestamp":{"seconds":N,"nanos":N},"severity":"LEVEL","message":"..."}
// for json — neither of which slog's built-in handlers produce verbatim,
// so severity/timestamp/message are assembled directly instead of going
// through ReplaceAttr.
type lineHandler struct {
	format string
	prefix string
	level  *slog.LevelVar
	w      io.Writer
}

func severityName(lvl slog.Level) string {
	if name, ok := levelNames[lvl]; ok {
		return name
	}
	return lvl.String()
}

func (h *lineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := r.Message
	if h.prefix != "" {
		msg = h.prefix + msg
	}

	var line string
	if h.format == "json" {
		line = fmt.Sprintf(`{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%s}`,
			r.Time.Unix(), r.Time.Nanosecond(), severityName(r.Level), strconv.Quote(msg))
	} else {
		line = fmt.Sprintf("time=%q severity=%s message=%q",
			r.Time.Format("2006/01/02 15:04:05.000000"), severityName(r.Level), msg)
	}

	r.Attrs(func(a slog.Attr) bool {
		line += " " + a.Key + "=" + strconv.Quote(fmt.Sprint(a.Value.Any()))
		return true
	})

	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *lineHandler) WithGroup(name string) slog.Handler       { return h }

// setLoggingLevel maps the project's config.LogSeverity values onto the
// slog level floor used by defaultLogger.
func setLoggingLevel(severity config.LogSeverity, level *slog.LevelVar) {
	switch severity {
	case config.TraceLogSeverity:
		level.Set(LevelTrace)
	case config.DebugLogSeverity:
		level.Set(LevelDebug)
	case config.InfoLogSeverity:
		level.Set(LevelInfo)
	case config.WarningLogSeverity:
		level.Set(LevelWarn)
	case config.ErrorLogSeverity:
		level.Set(LevelError)
	case config.OffLogSeverity:
		level.Set(LevelOff)
	default:
		level.Set(LevelInfo)
	}
}

// Init (re)configures the package-level logger per cfg. Any previously
// opened log file/async writer is closed first. Safe to call more than
// once, e.g. after a config reload.
func Init(cfg config.LoggingConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}

	var w io.Writer = os.Stdout
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   string(cfg.LogFile),
			MaxSize:    cfg.LogRotate.MaxFileSizeMb,
			MaxBackups: cfg.LogRotate.BackupFileCount,
			Compress:   cfg.LogRotate.Compress,
		}
		async := NewAsyncLogger(lj, 1000)
		closer = async
		w = async
	}

	programLevel.Set(LevelInfo)
	setLoggingLevel(cfg.Severity, programLevel)

	format := "text"
	factory := &loggerFactory{format: format, level: programLevel, writer: w}
	defaultLoggerFactory = factory
	defaultLogger = slog.New(factory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// Shutdown flushes and closes any underlying log file. Call during clean
// unmount so buffered async log lines are not lost.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

func Tracef(format string, v ...interface{}) {
	logger().Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	logger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	logger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	logger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	logger().Error(fmt.Sprintf(format, v...))
}
