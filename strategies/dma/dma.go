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

// Package dma trades a single security on a dual moving average crossover.
// The position is fully invested while the short average is above the long
// average and flat otherwise.
package dma

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/strategy"
)

const (
	defaultSecurity = "600000.XSHG"
	defaultShort    = 5
	defaultLong     = 20
)

type DualMovingAverage struct {
	strategy.Base

	security market.Security
	short    int
	long     int
}

func New(args map[string]json.RawMessage) (strategy.Strategy, error) {
	d := &DualMovingAverage{
		short: defaultShort,
		long:  defaultLong,
	}

	sid := defaultSecurity
	if raw, ok := args["security"]; ok {
		if err := json.Unmarshal(raw, &sid); err != nil {
			return nil, err
		}
	}
	security, err := market.ParseSecurity(sid)
	if err != nil {
		return nil, err
	}
	d.security = security

	if raw, ok := args["short"]; ok {
		if err := json.Unmarshal(raw, &d.short); err != nil {
			return nil, err
		}
	}
	if raw, ok := args["long"]; ok {
		if err := json.Unmarshal(raw, &d.long); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *DualMovingAverage) Initialize(_ context.Context, sc *strategy.Context) error {
	sc.SetBenchmark(d.security)
	_, err := sc.RunDaily(func(ctx context.Context, _ time.Time) error {
		return d.rebalance(ctx, sc)
	}, "open+30m")
	return err
}

func (d *DualMovingAverage) rebalance(ctx context.Context, sc *strategy.Context) error {
	// pull roughly twice the long window of calendar days so the trade-day
	// count comfortably covers the warm-up
	end := sc.CurrentDt()
	begin := end.AddDate(0, 0, -(d.long*3 + 10))

	prices, err := sc.GetPrice(ctx, []market.Security{d.security}, begin, end, data.MetricClose)
	if err != nil {
		return err
	}
	if prices.Len() < d.long {
		log.Warn().Stringer("Security", d.security).Int("NRows", prices.Len()).
			Msg("not enough history for moving averages")
		return nil
	}

	shortMA := lastVal(prices.SMA(d.short))
	longMA := lastVal(prices.SMA(d.long))
	if math.IsNaN(shortMA) || math.IsNaN(longMA) {
		return nil
	}

	holding := sc.Portfolio().Position(d.security) != nil
	switch {
	case shortMA > longMA && !holding:
		_, err = sc.OrderValue(ctx, d.security, sc.Portfolio().Cash)
	case shortMA < longMA && holding:
		_, err = sc.OrderTarget(ctx, d.security, 0)
	}
	if err != nil && errors.Is(err, strategy.ErrAmountRoundsToZero) {
		return nil
	}
	return err
}

func lastVal(df *dataframe.DataFrame) float64 {
	last := df.Last()
	if last.Len() == 0 || last.ColCount() == 0 {
		return math.NaN()
	}
	return last.Vals[0][0]
}
