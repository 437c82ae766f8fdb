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

package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/scheduler"
)

var (
	ErrNoReferencePrice       = errors.New("no reference price")
	ErrForbiddenSubscription  = errors.New("subscription not allowed for symbol")
	ErrAmountRoundsToZero     = errors.New("amount rounds to zero under the lot rule")
	ErrOrderBackendUnattached = errors.New("context has no runtime attached")
)

// Runtime is the driver-side surface a Context delegates to. The backtest
// and live drivers both implement it.
type Runtime interface {
	CurrentDt() time.Time
	Portfolio() *portfolio.Portfolio
	Scheduler() *scheduler.Scheduler
	Data() *data.Manager
	CurrentData() Data

	// PlaceOrder submits an already lot-rounded order and returns its id.
	// Halted securities are dropped with a warning, returning "" and no
	// error.
	PlaceOrder(ctx context.Context, security market.Security, side portfolio.Side, style portfolio.Style, amount int64) (string, error)
	// ReferencePrice is the price order-value arithmetic divides by
	ReferencePrice(security market.Security) (float64, error)

	SetBenchmark(security market.Security)
	SetOrderCost(cost broker.OrderCost)
	SetSlippage(slip broker.Slippage)

	Subscribe(ctx context.Context, securities []market.Security) error
	Unsubscribe(ctx context.Context, securities []market.Security) error

	SendMsg(ctx context.Context, msg string) error
}

// Context is the object handed to every strategy callback. It carries the
// persistent globals bag and forwards orders, scheduling, and data access to
// the driver.
type Context struct {
	runtime Runtime

	G       *Globals
	Options *Options
}

func NewContext(runtime Runtime) *Context {
	opts := DefaultOptions()
	return &Context{
		runtime: runtime,
		G:       NewGlobals(),
		Options: &opts,
	}
}

// CurrentDt is the virtual clock in backtests and the exchange clock live
func (c *Context) CurrentDt() time.Time {
	return c.runtime.CurrentDt()
}

// Portfolio is a read view; orders are the only way to mutate it
func (c *Context) Portfolio() *portfolio.Portfolio {
	return c.runtime.Portfolio()
}

// GetPrice fetches a price panel from the data manager. With use_real_price
// unset the panel is pre-adjusted against the window's last trade day.
func (c *Context) GetPrice(ctx context.Context, securities []market.Security, begin, end time.Time, metric string) (*dataframe.DataFrame, error) {
	fq := data.FqPre
	if c.Options.UseRealPrice {
		fq = data.FqNone
	}
	return c.runtime.Data().GetPrice(ctx, securities, begin, end, metric, fq)
}

// GetIndexStocks lists an index's constituents as of the given day
func (c *Context) GetIndexStocks(ctx context.Context, index market.Security, on time.Time) ([]market.Security, error) {
	return c.runtime.Data().GetIndexStocks(ctx, index, on)
}

// GetCurrentData returns the latest snapshot at the virtual clock
func (c *Context) GetCurrentData() Data {
	return c.runtime.CurrentData()
}

// Order trades a signed share amount: positive buys, negative sells. The
// amount passes through the lot rule before submission.
func (c *Context) Order(ctx context.Context, security market.Security, amount int64) (string, error) {
	if c.runtime == nil {
		return "", ErrOrderBackendUnattached
	}

	side := portfolio.Buy
	if amount < 0 {
		side = portfolio.Sell
		amount = -amount
	}

	if side == portfolio.Buy {
		amount = market.AdjustBuyAmount(security, amount)
	} else {
		var closeable int64
		if pos := c.runtime.Portfolio().Position(security); pos != nil {
			closeable = pos.CloseableAmount
		}
		amount = market.AdjustSellAmount(security, amount, closeable)
	}
	if amount == 0 {
		return "", fmt.Errorf("%w: %s", ErrAmountRoundsToZero, security)
	}

	return c.runtime.PlaceOrder(ctx, security, side, portfolio.MarketStyle(0), amount)
}

// OrderLimit is Order with an explicit limit price
func (c *Context) OrderLimit(ctx context.Context, security market.Security, amount int64, price float64) (string, error) {
	if c.runtime == nil {
		return "", ErrOrderBackendUnattached
	}

	side := portfolio.Buy
	if amount < 0 {
		side = portfolio.Sell
		amount = -amount
	}

	if side == portfolio.Buy {
		amount = market.AdjustBuyAmount(security, amount)
	} else {
		var closeable int64
		if pos := c.runtime.Portfolio().Position(security); pos != nil {
			closeable = pos.CloseableAmount
		}
		amount = market.AdjustSellAmount(security, amount, closeable)
	}
	if amount == 0 {
		return "", fmt.Errorf("%w: %s", ErrAmountRoundsToZero, security)
	}

	return c.runtime.PlaceOrder(ctx, security, side, portfolio.LimitStyle(price), amount)
}

// OrderValue trades approximately the given cash amount at the reference
// price; the sign selects the side.
func (c *Context) OrderValue(ctx context.Context, security market.Security, value float64) (string, error) {
	price, err := c.runtime.ReferencePrice(security)
	if err != nil {
		return "", err
	}
	if price <= 0 {
		return "", fmt.Errorf("%w: %s", ErrNoReferencePrice, security)
	}
	return c.Order(ctx, security, int64(value/price))
}

// OrderTarget trades the delta between the target amount and the current
// total holding (not the closeable balance).
func (c *Context) OrderTarget(ctx context.Context, security market.Security, target int64) (string, error) {
	var total int64
	if pos := c.runtime.Portfolio().Position(security); pos != nil {
		total = pos.TotalAmount
	}

	delta := target - total
	if delta == 0 {
		log.Debug().Stringer("Security", security).Int64("Target", target).
			Msg("already at target amount")
		return "", nil
	}
	return c.Order(ctx, security, delta)
}

// OrderTargetValue trades toward a target position value at the reference
// price.
func (c *Context) OrderTargetValue(ctx context.Context, security market.Security, targetValue float64) (string, error) {
	price, err := c.runtime.ReferencePrice(security)
	if err != nil {
		return "", err
	}
	if price <= 0 {
		return "", fmt.Errorf("%w: %s", ErrNoReferencePrice, security)
	}
	return c.OrderTarget(ctx, security, int64(targetValue/price))
}

// RunDaily schedules cb at the time expression every trade day
func (c *Context) RunDaily(cb scheduler.Callback, expr string) (string, error) {
	return c.runtime.Scheduler().RunDaily(cb, expr, scheduler.Skip)
}

// RunWeekly schedules cb on the given weekday, Monday being 0
func (c *Context) RunWeekly(cb scheduler.Callback, weekday int, expr string) (string, error) {
	return c.runtime.Scheduler().RunWeekly(cb, weekday, expr)
}

// RunMonthly schedules cb on the monthday, rolling forward over non-trade
// days.
func (c *Context) RunMonthly(cb scheduler.Callback, monthday int, expr string) (string, error) {
	return c.runtime.Scheduler().RunMonthly(cb, monthday, expr)
}

// Unschedule removes one scheduled task by id
func (c *Context) Unschedule(id string) error {
	return c.runtime.Scheduler().Unschedule(id)
}

// UnscheduleAll clears every scheduled task
func (c *Context) UnscheduleAll() {
	c.runtime.Scheduler().UnscheduleAll()
}

// SetBenchmark selects the index compared against in the daily records
func (c *Context) SetBenchmark(security market.Security) {
	c.runtime.SetBenchmark(security)
}

// SetOption applies one runtime tunable by key
func (c *Context) SetOption(key string, value interface{}) {
	c.Options.Set(key, value)
}

// SetOrderCost replaces the commission schedule
func (c *Context) SetOrderCost(cost broker.OrderCost) {
	c.runtime.SetOrderCost(cost)
}

// SetSlippage replaces the slippage model
func (c *Context) SetSlippage(slip broker.Slippage) {
	c.runtime.SetSlippage(slip)
}

// Subscribe registers securities for tick push. Index symbols and derivative
// main contracts are refused.
func (c *Context) Subscribe(ctx context.Context, securities []market.Security) error {
	for _, sec := range securities {
		if sec.Class() == market.ClassIndex {
			return fmt.Errorf("%w: %s", ErrForbiddenSubscription, sec)
		}
	}
	return c.runtime.Subscribe(ctx, securities)
}

// Unsubscribe drops tick subscriptions
func (c *Context) Unsubscribe(ctx context.Context, securities []market.Security) error {
	return c.runtime.Unsubscribe(ctx, securities)
}

// SendMsg delivers a notification through the configured messenger
func (c *Context) SendMsg(ctx context.Context, msg string) error {
	return c.runtime.SendMsg(ctx, msg)
}
