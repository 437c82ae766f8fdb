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

// Package momentum rotates monthly into the index constituents with the
// strongest trailing returns. Names with non-positive momentum are skipped,
// so the portfolio can sit partly in cash during drawdowns.
package momentum

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/indicators"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/strategy"
	"github.com/lotus-quant/lq-engine/util"
)

const (
	defaultIndex    = "000300.XSHG"
	defaultLookback = 60
	defaultTopN     = 5
	defaultMonthday = 1
)

type Rotation struct {
	strategy.Base

	index    market.Security
	lookback int
	topN     int
	monthday int
}

func New(args map[string]json.RawMessage) (strategy.Strategy, error) {
	r := &Rotation{
		lookback: defaultLookback,
		topN:     defaultTopN,
		monthday: defaultMonthday,
	}

	sid := defaultIndex
	if raw, ok := args["index"]; ok {
		if err := json.Unmarshal(raw, &sid); err != nil {
			return nil, err
		}
	}
	index, err := market.ParseSecurity(sid)
	if err != nil {
		return nil, err
	}
	r.index = index

	for key, dst := range map[string]*int{
		"lookback": &r.lookback,
		"top":      &r.topN,
		"monthday": &r.monthday,
	} {
		if raw, ok := args[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Rotation) Initialize(_ context.Context, sc *strategy.Context) error {
	sc.SetBenchmark(r.index)
	_, err := sc.RunMonthly(func(ctx context.Context, _ time.Time) error {
		return r.rebalance(ctx, sc)
	}, r.monthday, "open+30m")
	return err
}

func (r *Rotation) rebalance(ctx context.Context, sc *strategy.Context) error {
	end := sc.CurrentDt()
	constituents, err := sc.GetIndexStocks(ctx, r.index, end)
	if err != nil {
		return err
	}
	if len(constituents) == 0 {
		log.Warn().Stringer("Index", r.index).Msg("index has no constituents")
		return nil
	}

	// calendar window is padded so the trade-day count covers the lookback
	begin := end.AddDate(0, 0, -(r.lookback*2 + 14))
	prices, err := sc.GetPrice(ctx, constituents, begin, end, data.MetricClose)
	if err != nil {
		return err
	}

	target := r.selectTargets(prices)
	port := sc.Portfolio()

	// close positions that dropped out of the target set first to free cash
	for _, pos := range port.Positions() {
		if _, ok := target[pos.Security.String()]; ok {
			continue
		}
		if _, err := sc.OrderTarget(ctx, pos.Security, 0); err != nil &&
			!errors.Is(err, strategy.ErrAmountRoundsToZero) {
			return err
		}
	}

	if len(target) == 0 {
		return nil
	}

	slice := port.TotalValue() / float64(len(target))
	for sid := range target {
		security, err := market.ParseSecurity(sid)
		if err != nil {
			return err
		}
		if _, err := sc.OrderTargetValue(ctx, security, slice); err != nil &&
			!errors.Is(err, strategy.ErrAmountRoundsToZero) {
			return err
		}
	}
	return nil
}

// selectTargets ranks the columns of the price panel by trailing momentum and
// keeps the topN names with positive scores.
func (r *Rotation) selectTargets(prices *dataframe.DataFrame) map[string]bool {
	scores := indicators.LatestScores(prices, r.lookback)

	ranked := make(util.PairList, 0, len(scores))
	for sid, score := range scores {
		if score <= 0 {
			continue
		}
		ranked = append(ranked, util.Pair{Key: sid, Value: score})
	}
	sort.Sort(sort.Reverse(ranked))

	if len(ranked) > r.topN {
		ranked = ranked[:r.topN]
	}

	target := make(map[string]bool, len(ranked))
	for _, pair := range ranked {
		target[pair.Key] = true
	}
	return target
}
