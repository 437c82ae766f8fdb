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
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/live"
	"github.com/lotus-quant/lq-engine/strategies"
)

var (
	liveBroker  string
	liveCapital float64
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&liveBroker, "broker", "simulator", "Execution venue, one of: simulator")
	liveCmd.Flags().Float64Var(&liveCapital, "capital", 1_000_000, "Starting cash for the simulator broker")

	viper.BindEnv("runtime.dir", "RUNTIME_DIR")
	liveCmd.Flags().String("runtime-dir", "", "Directory holding persistent strategy state")
	viper.BindPFlag("runtime.dir", liveCmd.Flags().Lookup("runtime-dir"))

	liveCmd.Flags().String("listen", "", "Address for the status API, e.g. :3000; empty disables it")
	viper.BindPFlag("live.listen", liveCmd.Flags().Lookup("listen"))
}

var liveCmd = &cobra.Command{
	Use:        "live [flags] StrategyShortcode [StrategyArguments]",
	Short:      "Run a strategy against a live broker",
	Args:       cobra.MinimumNArgs(1),
	ArgAliases: []string{"StrategyShortcode", "StrategyArguments"},
	Run: func(_ *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		flushTraces := setupTracing()
		defer flushTraces()

		strategyArgs := ""
		if len(args) > 1 {
			strategyArgs = args[1]
		}
		strat, err := strategies.New(args[0], strategyArgs)
		if err != nil {
			log.Fatal().Err(err).Str("Shortcode", args[0]).Msg("could not create strategy")
		}

		manager, err := newDataManager(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data manager")
		}

		adapter, err := newAdapter()
		if err != nil {
			log.Fatal().Err(err).Str("Broker", liveBroker).Msg("could not create broker adapter")
		}

		driver, err := live.New(live.Config{
			RuntimeDir: common.RuntimeDir(),
			Risk:       riskConfig(),
			ListenAddr: viper.GetString("live.listen"),
		}, manager, adapter, strat)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create live driver")
		}

		log.Info().Str("Strategy", args[0]).Str("Broker", liveBroker).Msg("starting live session")
		if err := driver.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("live session failed")
		}
	},
}

// newAdapter builds the venue adapter behind a circuit breaker
func newAdapter() (broker.Adapter, error) {
	switch liveBroker {
	case "simulator":
		return broker.NewBreaker(broker.NewSimulator(liveCapital), liveBroker), nil
	}
	return nil, fmt.Errorf("unknown broker %q", liveBroker)
}
