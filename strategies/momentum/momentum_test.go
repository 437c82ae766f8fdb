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

package momentum_test

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/backtest"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/strategies/momentum"
	"github.com/lotus-quant/lq-engine/tradecron"
)

var _ = Describe("Rotation", func() {
	var (
		tz       *time.Location
		provider *data.MemoryProvider
		manager  *data.Manager
		index    market.Security
		rising   market.Security
		falling  market.Security
		drifting market.Security
		days     []time.Time
	)

	seedBars := func(security market.Security, start, step float64) {
		price := start
		for _, day := range days {
			price += step
			provider.AddBars(security, &data.Bar{
				Date: day, Open: price, High: price, Low: price, Close: price,
				Volume: 1_000_000, HighLimit: price * 1.1, LowLimit: price * 0.9,
			})
		}
	}

	BeforeEach(func() {
		tz = common.GetTimezone()
		provider = data.NewMemoryProvider()
		manager = data.NewManager(provider)

		index = market.MustParseSecurity("000300.XSHG")
		rising = market.MustParseSecurity("600519.XSHG")
		falling = market.MustParseSecurity("000001.XSHE")
		drifting = market.MustParseSecurity("600000.XSHG")

		// weekdays spanning a month boundary so the monthly trigger fires
		days = nil
		for d := time.Date(2024, 4, 22, 0, 0, 0, 0, tz); len(days) < 18; d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
				days = append(days, d)
			}
		}
		provider.SetTradeDays(days)
		provider.SetIndexStocks(index, []market.Security{rising, falling, drifting})

		seedBars(rising, 100, 2)
		seedBars(falling, 100, -2)
		seedBars(drifting, 100, -0.1)
	})

	It("builds from JSON arguments", func() {
		strat, err := momentum.New(map[string]json.RawMessage{
			"index":    json.RawMessage(`"000905.XSHG"`),
			"lookback": json.RawMessage(`20`),
			"top":      json.RawMessage(`3`),
		})
		Expect(err).To(BeNil())
		Expect(strat).NotTo(BeNil())
	})

	It("rotates into the strongest constituent only", func() {
		strat, err := momentum.New(map[string]json.RawMessage{
			"lookback": json.RawMessage(`5`),
			"top":      json.RawMessage(`1`),
		})
		Expect(err).To(BeNil())

		driver, err := backtest.New(backtest.Config{
			StartDate:   days[0],
			EndDate:     days[len(days)-1],
			CapitalBase: 1_000_000,
			Frequency:   tradecron.Daily,
		}, manager, strat)
		Expect(err).To(BeNil())

		result, err := driver.Run(context.Background())
		Expect(err).To(BeNil())
		Expect(result.Trades).NotTo(BeEmpty())

		// only the rising name was ever bought
		for _, trade := range result.Trades {
			Expect(trade.Security).To(Equal(rising))
		}
	})
})
