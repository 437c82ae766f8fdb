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

// Package risk vets orders against per-order and per-day limits before they
// reach the broker.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

// ErrVeto wraps every rejection so callers can test for the class
var ErrVeto = errors.New("risk veto")

// Config holds the limits; a zero field disables that check. MaxPositionRatio
// is a percent of total portfolio value.
type Config struct {
	MaxOrderValue      float64
	MaxDailyTradeValue float64
	MaxDailyTrades     int
	MaxStockCount      int
	MaxPositionRatio   float64
	StopLossRatio      float64
}

// Controller tracks daily trading activity and applies the configured
// limits. Counters reset at the start of each trade day.
type Controller struct {
	config Config

	dailyTrades     int
	dailyTradeValue float64
	dailyBuyValue   float64
	dailySellValue  float64
	rejectedOrders  int
}

func NewController(config Config) *Controller {
	return &Controller{config: config}
}

// CheckOrder vets a prospective order of the given notional value. A
// rejection increments the rejected counter and returns an error wrapping
// ErrVeto.
func (c *Controller) CheckOrder(port *portfolio.Portfolio, security market.Security, side portfolio.Side, value float64) error {
	if err := c.vet(port, security, side, value); err != nil {
		c.rejectedOrders++
		log.Warn().Err(err).Stringer("Security", security).
			Stringer("Side", side).Float64("Value", value).Msg("order vetoed")
		return err
	}
	return nil
}

func (c *Controller) vet(port *portfolio.Portfolio, security market.Security, side portfolio.Side, value float64) error {
	if c.config.MaxOrderValue > 0 && value > c.config.MaxOrderValue {
		return fmt.Errorf("%w: order value %.2f exceeds limit %.2f",
			ErrVeto, value, c.config.MaxOrderValue)
	}

	if c.config.MaxDailyTrades > 0 && c.dailyTrades+1 > c.config.MaxDailyTrades {
		return fmt.Errorf("%w: daily trade count limit %d reached",
			ErrVeto, c.config.MaxDailyTrades)
	}

	if c.config.MaxDailyTradeValue > 0 && c.dailyTradeValue+value > c.config.MaxDailyTradeValue {
		return fmt.Errorf("%w: daily trade value %.2f would exceed limit %.2f",
			ErrVeto, c.dailyTradeValue+value, c.config.MaxDailyTradeValue)
	}

	if side == portfolio.Buy {
		if c.config.MaxStockCount > 0 && port.Position(security) == nil &&
			port.PositionCount() >= c.config.MaxStockCount {
			return fmt.Errorf("%w: holding count limit %d reached",
				ErrVeto, c.config.MaxStockCount)
		}

		if c.config.MaxPositionRatio > 0 {
			total := port.TotalValue()
			var held float64
			if pos := port.Position(security); pos != nil {
				held = pos.Value()
			}
			if total > 0 && (held+value)/total*100 > c.config.MaxPositionRatio {
				return fmt.Errorf("%w: position would be %.1f%% of portfolio, limit %.1f%%",
					ErrVeto, (held+value)/total*100, c.config.MaxPositionRatio)
			}
		}
	}

	return nil
}

// RecordTrade accumulates an executed trade into the daily counters
func (c *Controller) RecordTrade(side portfolio.Side, value float64) {
	c.dailyTrades++
	c.dailyTradeValue += value
	if side == portfolio.Buy {
		c.dailyBuyValue += value
	} else {
		c.dailySellValue += value
	}
}

// ShouldStopLoss reports whether a position's loss has reached the stop-loss
// ratio.
func (c *Controller) ShouldStopLoss(pos *portfolio.Position) bool {
	if c.config.StopLossRatio <= 0 || pos == nil || pos.AvgCost <= 0 {
		return false
	}
	loss := (pos.AvgCost - pos.LastPrice) / pos.AvgCost
	return loss >= c.config.StopLossRatio
}

// MaxOrderValueAllowed is the largest order value that would pass both the
// per-order and remaining daily-value limits.
func (c *Controller) MaxOrderValueAllowed() float64 {
	allowed := math.Inf(1)
	if c.config.MaxOrderValue > 0 {
		allowed = c.config.MaxOrderValue
	}
	if c.config.MaxDailyTradeValue > 0 {
		remaining := c.config.MaxDailyTradeValue - c.dailyTradeValue
		if remaining < 0 {
			remaining = 0
		}
		allowed = math.Min(allowed, remaining)
	}
	if math.IsInf(allowed, 1) {
		return 0
	}
	return allowed
}

// ResetDaily clears the per-day counters; called at before-open
func (c *Controller) ResetDaily() {
	c.dailyTrades = 0
	c.dailyTradeValue = 0
	c.dailyBuyValue = 0
	c.dailySellValue = 0
}

// DailyTrades returns today's executed trade count
func (c *Controller) DailyTrades() int { return c.dailyTrades }

// DailyTradeValue returns today's executed notional
func (c *Controller) DailyTradeValue() float64 { return c.dailyTradeValue }

// DailyBuyValue returns today's executed buy notional
func (c *Controller) DailyBuyValue() float64 { return c.dailyBuyValue }

// DailySellValue returns today's executed sell notional
func (c *Controller) DailySellValue() float64 { return c.dailySellValue }

// RejectedOrders returns the number of vetoed orders since construction
func (c *Controller) RejectedOrders() int { return c.rejectedOrders }
