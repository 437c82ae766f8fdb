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

// Package portfolio tracks cash, positions, and trades under A-share
// settlement rules, and applies corporate actions on ex dates.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/market"
)

var (
	ErrInsufficientCash      = errors.New("insufficient cash")
	ErrInsufficientCloseable = errors.New("insufficient closeable shares")
	ErrInvariantBroken       = errors.New("portfolio invariant broken")
)

// DailyRecord is one end-of-day snapshot
type DailyRecord struct {
	Date           time.Time
	Cash           float64
	PositionsValue float64
	TotalValue     float64
	Returns        float64 // cumulative since inception
}

// Portfolio is the cash and position ledger. It is owned by the driver and
// must only be mutated from the driver's dispatch goroutine.
type Portfolio struct {
	InitialCash float64
	Cash        float64

	positions map[market.Security]*Position
	trades    []*Trade
	records   []*DailyRecord
}

func NewPortfolio(capitalBase float64) *Portfolio {
	return &Portfolio{
		InitialCash: capitalBase,
		Cash:        capitalBase,
		positions:   make(map[market.Security]*Position),
	}
}

// Position returns the holding for security, or nil when flat
func (p *Portfolio) Position(security market.Security) *Position {
	return p.positions[security]
}

// Positions returns holdings sorted by security id
func (p *Portfolio) Positions() []*Position {
	out := make([]*Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Security.String() < out[j].Security.String()
	})
	return out
}

// PositionCount returns the number of open holdings
func (p *Portfolio) PositionCount() int { return len(p.positions) }

// PositionsValue is the mark-to-market worth of all holdings
func (p *Portfolio) PositionsValue() float64 {
	var value float64
	for _, pos := range p.positions {
		value += pos.Value()
	}
	return value
}

// TotalValue is cash plus the value of all holdings
func (p *Portfolio) TotalValue() float64 {
	return p.Cash + p.PositionsValue()
}

// Returns is the cumulative return since inception
func (p *Portfolio) Returns() float64 {
	if p.InitialCash == 0 {
		return 0
	}
	return p.TotalValue()/p.InitialCash - 1
}

// Trades returns all recorded fills in execution order
func (p *Portfolio) Trades() []*Trade {
	out := make([]*Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// Records returns the daily snapshots in order
func (p *Portfolio) Records() []*DailyRecord {
	out := make([]*DailyRecord, len(p.records))
	copy(out, p.records)
	return out
}

// ApplyBuy settles a buy fill: cash decreases by value plus fees and the
// position's cost basis absorbs the fees. Shares bought today are not
// closeable until the next trade day.
func (p *Portfolio) ApplyBuy(order *Order, at time.Time, amount int64, price, commission, tax float64) (*Trade, error) {
	total := float64(amount)*price + commission + tax
	if total > p.Cash {
		return nil, fmt.Errorf("%w: need %.2f have %.2f", ErrInsufficientCash, total, p.Cash)
	}

	pos, ok := p.positions[order.Security]
	if !ok {
		pos = &Position{Security: order.Security}
		p.positions[order.Security] = pos
	}
	pos.addShares(amount, price, commission+tax)
	pos.LastPrice = price
	p.Cash -= total

	trade := newTrade(order, at, amount, price, commission, tax)
	p.trades = append(p.trades, trade)
	return trade, nil
}

// ApplySell settles a sell fill: both share counters decrease together and
// cash increases by value minus fees. Cost basis is unchanged. Positions
// that reach zero are removed.
func (p *Portfolio) ApplySell(order *Order, at time.Time, amount int64, price, commission, tax float64) (*Trade, error) {
	pos, ok := p.positions[order.Security]
	if !ok || pos.CloseableAmount < amount {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientCloseable, order.Security)
	}

	pos.removeShares(amount, price)
	p.Cash += float64(amount)*price - commission - tax

	if pos.TotalAmount == 0 {
		delete(p.positions, order.Security)
	}

	trade := newTrade(order, at, amount, price, commission, tax)
	p.trades = append(p.trades, trade)
	return trade, nil
}

// SeedPosition installs a holding reported by an external ledger, such as a
// broker account sync at live startup.
func (p *Portfolio) SeedPosition(security market.Security, total, closeable int64, avgCost, lastPrice float64) {
	if total <= 0 {
		return
	}
	p.positions[security] = &Position{
		Security:        security,
		TotalAmount:     total,
		CloseableAmount: closeable,
		AvgCost:         avgCost,
		LastPrice:       lastPrice,
	}
}

// PostCash credits cash from outside trading, such as a dividend
func (p *Portfolio) PostCash(amount float64) {
	p.Cash += amount
}

// UpdateCloseable releases the T+1 hold. Called at before-open of each trade
// day.
func (p *Portfolio) UpdateCloseable() {
	for _, pos := range p.positions {
		pos.CloseableAmount = pos.TotalAmount
	}
}

// MarkToMarket refreshes last prices from the supplied close prices.
// Securities missing from the map keep their previous mark.
func (p *Portfolio) MarkToMarket(prices map[market.Security]float64) {
	for sec, pos := range p.positions {
		if price, ok := prices[sec]; ok {
			pos.LastPrice = price
		}
	}
}

// RecordDay checks invariants and appends the end-of-day snapshot
func (p *Portfolio) RecordDay(date time.Time) (*DailyRecord, error) {
	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}

	record := &DailyRecord{
		Date:           market.Midnight(date),
		Cash:           p.Cash,
		PositionsValue: p.PositionsValue(),
		TotalValue:     p.TotalValue(),
		Returns:        p.Returns(),
	}
	p.records = append(p.records, record)
	return record, nil
}

// CheckInvariants verifies the ledger is internally consistent. A failure is
// fatal to the driver.
func (p *Portfolio) CheckInvariants() error {
	for sec, pos := range p.positions {
		if pos.CloseableAmount < 0 || pos.CloseableAmount > pos.TotalAmount {
			return fmt.Errorf("%w: %s closeable %d outside [0, %d]",
				ErrInvariantBroken, sec, pos.CloseableAmount, pos.TotalAmount)
		}
		if pos.TotalAmount <= 0 {
			return fmt.Errorf("%w: %s held with %d shares", ErrInvariantBroken, sec, pos.TotalAmount)
		}
	}
	if p.TotalValue() < 0 {
		log.Error().Float64("TotalValue", p.TotalValue()).Msg("portfolio value went negative")
		return fmt.Errorf("%w: negative total value", ErrInvariantBroken)
	}
	return nil
}
