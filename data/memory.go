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
	"sort"
	"sync"
	"time"

	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
)

// MemoryProvider serves data loaded into memory. It backs unit tests and
// small research backtests where all bars fit in RAM.
type MemoryProvider struct {
	mu         sync.RWMutex
	bars       map[market.Security][]*Bar
	factors    map[market.Security][]AdjFactor
	tradeDays  []time.Time
	securities []*SecurityInfo
	indexes    map[market.Security][]market.Security
	actions    map[time.Time][]*CorporateAction
	quotes     map[market.Security]*Quote
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		bars:    make(map[market.Security][]*Bar),
		factors: make(map[market.Security][]AdjFactor),
		indexes: make(map[market.Security][]market.Security),
		actions: make(map[time.Time][]*CorporateAction),
		quotes:  make(map[market.Security]*Quote),
	}
}

func (p *MemoryProvider) Name() string { return "memory" }

// AddBars loads bars for a security, keeping them sorted by date
func (p *MemoryProvider) AddBars(security market.Security, bars ...*Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[security] = append(p.bars[security], bars...)
	sort.Slice(p.bars[security], func(i, j int) bool {
		return p.bars[security][i].Date.Before(p.bars[security][j].Date)
	})
}

// AddAdjFactors loads adjustment factors for a security, kept sorted by date
func (p *MemoryProvider) AddAdjFactors(security market.Security, factors ...AdjFactor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factors[security] = append(p.factors[security], factors...)
	sort.Slice(p.factors[security], func(i, j int) bool {
		return p.factors[security][i].Date.Before(p.factors[security][j].Date)
	})
}

// SetTradeDays replaces the trading calendar
func (p *MemoryProvider) SetTradeDays(days []time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tradeDays = make([]time.Time, len(days))
	for idx, d := range days {
		p.tradeDays[idx] = market.Midnight(d)
	}
	sort.Slice(p.tradeDays, func(i, j int) bool { return p.tradeDays[i].Before(p.tradeDays[j]) })
}

// AddSecurities registers listed instruments
func (p *MemoryProvider) AddSecurities(infos ...*SecurityInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.securities = append(p.securities, infos...)
}

// SetIndexStocks sets index constituents
func (p *MemoryProvider) SetIndexStocks(index market.Security, members []market.Security) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexes[index] = members
}

// AddAction registers a corporate action for its ex date
func (p *MemoryProvider) AddAction(action *CorporateAction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := market.Midnight(action.ExDate)
	p.actions[day] = append(p.actions[day], action)
}

// SetQuote sets the live snapshot for a security
func (p *MemoryProvider) SetQuote(quote *Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[quote.Security] = quote
}

func (p *MemoryProvider) GetPrice(_ context.Context, securities []market.Security, begin, end time.Time, metric string) (*dataframe.DataFrame, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dfMap := dataframe.DataFrameMap{}
	for _, sec := range securities {
		var dates []time.Time
		var vals []float64
		for _, bar := range p.bars[sec] {
			if bar.Date.Before(begin) || bar.Date.After(end) {
				continue
			}
			v, err := barMetric(bar, metric)
			if err != nil {
				return nil, err
			}
			dates = append(dates, bar.Date)
			vals = append(vals, v)
		}
		dfMap[sec.String()] = &dataframe.DataFrame{
			Dates:    dates,
			ColNames: []string{sec.String()},
			Vals:     [][]float64{vals},
		}
	}

	return dfMap.DataFrame(), nil
}

func barMetric(bar *Bar, metric string) (float64, error) {
	switch metric {
	case MetricOpen:
		return bar.Open, nil
	case MetricHigh:
		return bar.High, nil
	case MetricLow:
		return bar.Low, nil
	case MetricClose:
		return bar.Close, nil
	case MetricVolume:
		return bar.Volume, nil
	case MetricHighLimit:
		return bar.HighLimit, nil
	case MetricLowLimit:
		return bar.LowLimit, nil
	}
	return 0, ErrUnknownMetric
}

func (p *MemoryProvider) GetAdjFactors(_ context.Context, security market.Security, begin, end time.Time) ([]AdjFactor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []AdjFactor
	for _, f := range p.factors[security] {
		if f.Date.Before(begin) || f.Date.After(end) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (p *MemoryProvider) GetBars(_ context.Context, security market.Security, begin, end time.Time) ([]*Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Bar
	for _, bar := range p.bars[security] {
		if bar.Date.Before(begin) || bar.Date.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

func (p *MemoryProvider) GetTradeDays(_ context.Context, begin, end time.Time) ([]time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []time.Time
	for _, d := range p.tradeDays {
		if d.Before(begin) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *MemoryProvider) GetAllSecurities(_ context.Context, on time.Time) ([]*SecurityInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*SecurityInfo
	for _, info := range p.securities {
		if !info.ListDate.After(on) && (info.DelistDate.IsZero() || info.DelistDate.After(on)) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (p *MemoryProvider) GetIndexStocks(_ context.Context, index market.Security, _ time.Time) ([]market.Security, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	members, ok := p.indexes[index]
	if !ok {
		return nil, ErrNoData
	}
	return members, nil
}

func (p *MemoryProvider) GetSplitDividend(_ context.Context, on time.Time) ([]*CorporateAction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.actions[market.Midnight(on)], nil
}

func (p *MemoryProvider) GetLiveCurrent(_ context.Context, securities []market.Security) ([]*Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Quote, 0, len(securities))
	for _, sec := range securities {
		q, ok := p.quotes[sec]
		if !ok {
			return nil, ErrNoData
		}
		out = append(out, q)
	}
	return out, nil
}
