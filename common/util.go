// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
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

package common

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DateFormat is the canonical date layout used in logs and reports
const DateFormat = "2006-01-02"

// DateTimeFormat is the canonical timestamp layout used in logs and reports
const DateTimeFormat = "2006-01-02 15:04:05"

// GetTimezone returns the exchange timezone. All A-share sessions are
// expressed in Asia/Shanghai regardless of the host clock.
func GetTimezone() *time.Location {
	tz, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		log.Panic().Err(err).Msg("could not load timezone")
	}
	return tz
}

// MaxTime returns the later of a and b
func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// MinTime returns the earlier of a and b
func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// SetupLogging configures the global zerolog logger from viper settings
func SetupLogging() {
	level := strings.ToLower(viper.GetString("log.level"))

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	output := viper.GetString("log.output")
	switch output {
	case "", "stdout":
		if viper.GetBool("log.pretty") {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: DateTimeFormat})
		} else {
			log.Logger = log.Output(os.Stdout)
		}
	case "stderr":
		if viper.GetBool("log.pretty") {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: DateTimeFormat})
		} else {
			log.Logger = log.Output(os.Stderr)
		}
	default:
		if !filepath.IsAbs(output) {
			output = filepath.Join(LogDir(), output)
		}
		// rotate log files so long-running live sessions don't fill the disk
		writer := &lumberjack.Logger{
			Filename:   output,
			MaxSize:    viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAge:     viper.GetInt("log.max_age_days"),
			Compress:   true,
		}
		log.Logger = log.Output(writer)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// LogDir returns the configured log directory, creating it if necessary
func LogDir() string {
	dir := viper.GetString("log.dir")
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("Dir", dir).Msg("could not create log directory")
	}
	return dir
}

// RuntimeDir returns the configured runtime directory, creating it if necessary
func RuntimeDir() string {
	dir := viper.GetString("runtime.dir")
	if dir == "" {
		dir = filepath.Join(".", "runtime")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("Dir", dir).Msg("could not create runtime directory")
	}
	return dir
}
