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
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lotus-quant/lq-engine/backtest"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/strategies"
	"github.com/lotus-quant/lq-engine/tradecron"
)

var (
	backtestStart     string
	backtestEnd       string
	backtestCapital   float64
	backtestBenchmark string
	backtestTrades    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "First trade day of the run (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "Last trade day of the run (YYYY-MM-DD)")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 1_000_000, "Starting cash")
	backtestCmd.Flags().StringVar(&backtestBenchmark, "benchmark", "000300.XSHG", "Benchmark index")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "Print every trade")
}

var backtestCmd = &cobra.Command{
	Use:        "backtest [flags] StrategyShortcode [StrategyArguments]",
	Short:      "Run a backtest of a strategy",
	Args:       cobra.MinimumNArgs(1),
	ArgAliases: []string{"StrategyShortcode", "StrategyArguments"},
	Run: func(_ *cobra.Command, args []string) {
		ctx := context.Background()

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

		start, err := parseDay(backtestStart)
		if err != nil {
			log.Fatal().Err(err).Str("Start", backtestStart).Msg("could not parse start date")
		}
		end, err := parseDay(backtestEnd)
		if err != nil {
			log.Fatal().Err(err).Str("End", backtestEnd).Msg("could not parse end date")
		}
		benchmark, err := market.ParseSecurity(backtestBenchmark)
		if err != nil {
			log.Fatal().Err(err).Str("Benchmark", backtestBenchmark).Msg("could not parse benchmark")
		}

		manager, err := newDataManager(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data manager")
		}

		driver, err := backtest.New(backtest.Config{
			StartDate:   start,
			EndDate:     end,
			CapitalBase: backtestCapital,
			Frequency:   tradecron.Daily,
			Benchmark:   benchmark,
			Risk:        riskConfig(),
		}, manager, strat)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create backtest driver")
		}

		result, err := driver.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("backtest failed")
		}

		printResult(result)
	},
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	return time.ParseInLocation(common.DateFormat, s, common.GetTimezone())
}

func printResult(result *backtest.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)

	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }
	table.Append([]string{"Total Return", pct(result.Metrics.TotalReturn)})
	table.Append([]string{"Annualized Return", pct(result.Metrics.AnnualizedReturn)})
	table.Append([]string{"Benchmark Return", pct(result.BenchmarkReturn)})
	table.Append([]string{"Volatility", pct(result.Metrics.Volatility)})
	table.Append([]string{"Sharpe Ratio", fmt.Sprintf("%.2f", result.Metrics.SharpeRatio)})
	table.Append([]string{"Max Drawdown", pct(result.Metrics.MaxDrawdown)})
	table.Append([]string{"Win Rate", pct(result.Metrics.WinRate)})
	table.Append([]string{"Trades", fmt.Sprintf("%d", len(result.Trades))})
	table.Render()

	if len(result.Records) > 0 {
		final := result.Records[len(result.Records)-1]
		fmt.Printf("\nFinal value: %.2f (cash %.2f, positions %.2f) on %s\n",
			final.TotalValue, final.Cash, final.PositionsValue, final.Date.Format(common.DateFormat))
	}

	if backtestTrades {
		trades := tablewriter.NewWriter(os.Stdout)
		trades.SetHeader([]string{"Date", "Security", "Side", "Amount", "Price", "Commission", "Tax"})
		trades.SetBorder(false)
		for _, trade := range result.Trades {
			trades.Append([]string{
				trade.Time.Format(common.DateFormat),
				trade.Security.String(),
				trade.Side.String(),
				fmt.Sprintf("%d", trade.Amount),
				fmt.Sprintf("%.2f", trade.Price),
				fmt.Sprintf("%.2f", trade.Commission),
				fmt.Sprintf("%.2f", trade.Tax),
			})
		}
		fmt.Println()
		trades.Render()
	}
}
