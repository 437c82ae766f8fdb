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

package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
)

// Manager fronts a Provider with an in-process LRU cache. Historical data is
// immutable so entries never expire; live quotes bypass the cache.
type Manager struct {
	provider Provider
	cache    *lru.Cache
}

func NewManager(provider Provider) *Manager {
	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New(size)
	if err != nil {
		log.Panic().Err(err).Msg("could not create data cache")
	}
	return &Manager{
		provider: provider,
		cache:    cache,
	}
}

// Provider returns the wrapped provider
func (m *Manager) Provider() Provider { return m.provider }

func (m *Manager) GetPrice(ctx context.Context, securities []market.Security, begin, end time.Time, metric string, fq Fq) (*dataframe.DataFrame, error) {
	if fq == "" {
		fq = FqNone
	}
	tickers := make([]string, 0, len(securities))
	for _, s := range securities {
		tickers = append(tickers, s.String())
	}
	key := fmt.Sprintf("price:%s:%s:%s:%s:%s", strings.Join(tickers, ","), begin.Format(common.DateFormat), end.Format(common.DateFormat), metric, fq)
	if v, ok := m.cache.Get(key); ok {
		return v.(*dataframe.DataFrame), nil
	}

	df, err := m.provider.GetPrice(ctx, securities, begin, end, metric)
	if err != nil {
		return nil, err
	}
	if fq == FqPre && isPriceMetric(metric) {
		for _, sec := range securities {
			factors, err := m.provider.GetAdjFactors(ctx, sec, begin, end)
			if err != nil {
				return nil, err
			}
			preAdjust(df, sec.String(), factors)
		}
	}
	m.cache.Add(key, df)
	return df, nil
}

func isPriceMetric(metric string) bool {
	switch metric {
	case MetricOpen, MetricHigh, MetricLow, MetricClose, MetricHighLimit, MetricLowLimit:
		return true
	}
	return false
}

// preAdjust rescales one column in place so the series is continuous across
// splits and dividends, normalized to the window's last row.
func preAdjust(df *dataframe.DataFrame, column string, factors []AdjFactor) {
	col := df.ColIndex(column)
	if col < 0 || len(factors) == 0 || len(df.Dates) == 0 {
		return
	}

	// carry the latest factor forward over days without one
	eff := make([]float64, len(df.Dates))
	f := factors[0].Factor
	j := 0
	for k, dt := range df.Dates {
		for j < len(factors) && !factors[j].Date.After(dt) {
			f = factors[j].Factor
			j++
		}
		eff[k] = f
	}

	ref := eff[len(eff)-1]
	if ref == 0 {
		return
	}
	for k := range df.Vals[col] {
		df.Vals[col][k] *= eff[k] / ref
	}
}

func (m *Manager) GetBars(ctx context.Context, security market.Security, begin, end time.Time) ([]*Bar, error) {
	key := fmt.Sprintf("bars:%s:%s:%s", security, begin.Format(common.DateFormat), end.Format(common.DateFormat))
	if v, ok := m.cache.Get(key); ok {
		return v.([]*Bar), nil
	}

	bars, err := m.provider.GetBars(ctx, security, begin, end)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, bars)
	return bars, nil
}

// GetBar returns the bar for one security on one day; nil when the security
// did not trade.
func (m *Manager) GetBar(ctx context.Context, security market.Security, day time.Time) (*Bar, error) {
	day = market.Midnight(day)
	bars, err := m.GetBars(ctx, security, day, day)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return bars[0], nil
}

func (m *Manager) GetTradeDays(ctx context.Context, begin, end time.Time) ([]time.Time, error) {
	key := fmt.Sprintf("days:%s:%s", begin.Format(common.DateFormat), end.Format(common.DateFormat))
	if v, ok := m.cache.Get(key); ok {
		return v.([]time.Time), nil
	}

	days, err := m.provider.GetTradeDays(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, days)
	return days, nil
}

// Calendar builds a trading calendar covering the requested range
func (m *Manager) Calendar(ctx context.Context, begin, end time.Time) (*market.Calendar, error) {
	days, err := m.GetTradeDays(ctx, begin, end)
	if err != nil {
		return nil, err
	}
	return market.NewCalendar(days), nil
}

func (m *Manager) GetAllSecurities(ctx context.Context, on time.Time) ([]*SecurityInfo, error) {
	key := fmt.Sprintf("securities:%s", on.Format(common.DateFormat))
	if v, ok := m.cache.Get(key); ok {
		return v.([]*SecurityInfo), nil
	}

	infos, err := m.provider.GetAllSecurities(ctx, on)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, infos)
	return infos, nil
}

func (m *Manager) GetIndexStocks(ctx context.Context, index market.Security, on time.Time) ([]market.Security, error) {
	key := fmt.Sprintf("index:%s:%s", index, on.Format(common.DateFormat))
	if v, ok := m.cache.Get(key); ok {
		return v.([]market.Security), nil
	}

	members, err := m.provider.GetIndexStocks(ctx, index, on)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, members)
	return members, nil
}

func (m *Manager) GetSplitDividend(ctx context.Context, on time.Time) ([]*CorporateAction, error) {
	key := fmt.Sprintf("actions:%s", on.Format(common.DateFormat))
	if v, ok := m.cache.Get(key); ok {
		return v.([]*CorporateAction), nil
	}

	actions, err := m.provider.GetSplitDividend(ctx, on)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, actions)
	return actions, nil
}

// GetLiveCurrent always goes to the provider; live snapshots are never cached
func (m *Manager) GetLiveCurrent(ctx context.Context, securities []market.Security) ([]*Quote, error) {
	return m.provider.GetLiveCurrent(ctx, securities)
}
