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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/observability/opentelemetry"
)

func init() {
	cobra.OnInitialize(initConfig)

	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	// Tushare market data
	viper.BindEnv("tushare.token", "TUSHARE_TOKEN")
	rootCmd.PersistentFlags().String("tushare-token", "", "Tushare Pro API token")
	viper.BindPFlag("tushare.token", rootCmd.PersistentFlags().Lookup("tushare-token"))

	// NATS notifications
	viper.BindEnv("nats.server", "NATS_SERVER")
	rootCmd.PersistentFlags().String("nats-server", "", "NATS server for strategy notifications")
	viper.BindPFlag("nats.server", rootCmd.PersistentFlags().Lookup("nats-server"))

	// Redis bar cache
	viper.BindEnv("redis.url", "REDIS_URL")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection string for the bar cache")
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis-url"))

	// OpenTelemetry trace export
	viper.BindEnv("otlp.endpoint", "OTLP_ENDPOINT")
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OTLP collector endpoint for trace export; empty disables tracing")
	viper.BindPFlag("otlp.endpoint", rootCmd.PersistentFlags().Lookup("otlp-endpoint"))

	rootCmd.PersistentFlags().Bool("otlp-http", false, "Use HTTP(s) instead of gRPC for the OTLP connection")
	viper.BindPFlag("otlp.http", rootCmd.PersistentFlags().Lookup("otlp-http"))

	// Logging
	viper.BindEnv("log.level", "LQ_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.output", "LQ_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	rootCmd.PersistentFlags().Bool("log-pretty", false, "Print logs in human readable console format")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	viper.BindEnv("log.dir", "LOG_DIR")
	rootCmd.PersistentFlags().String("log-dir", "", "Directory for rotated log files")
	viper.BindPFlag("log.dir", rootCmd.PersistentFlags().Lookup("log-dir"))

	viper.BindEnv("log.report_caller", "LQ_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/etc/lq-engine/")
	viper.AddConfigPath("$HOME/.config/lq-engine")
	viper.AddConfigPath(".")

	// a config file is optional; flags and env cover everything
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	common.SetupLogging()
}

// setupTracing initializes the global tracer when an OTLP endpoint is
// configured and returns a flush function for command exit.
func setupTracing() func() {
	if viper.GetString("otlp.endpoint") == "" {
		return func() {}
	}
	shutdown, err := opentelemetry.Setup()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize trace exporter")
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down trace exporter")
		}
	}
}

var rootCmd = &cobra.Command{
	Use:     "lq-engine",
	Version: common.CurrentVersion.String(),
	Short:   "lq-engine is a strategy runtime for China A-share markets",
	Long: `A trading strategy runtime for China A-share markets that backtests
strategies against historical daily bars and runs them live against a broker.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
