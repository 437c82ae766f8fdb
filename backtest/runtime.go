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

package backtest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/observability/opentelemetry"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/scheduler"
	"github.com/lotus-quant/lq-engine/strategy"
)

// CurrentDt is the virtual clock
func (d *Driver) CurrentDt() time.Time { return d.currentDt }

func (d *Driver) Portfolio() *portfolio.Portfolio { return d.port }

func (d *Driver) Scheduler() *scheduler.Scheduler { return d.sched }

func (d *Driver) Data() *data.Manager { return d.manager }

// CurrentData serves quotes off today's bars at the virtual clock
func (d *Driver) CurrentData() strategy.Data {
	return &barData{driver: d}
}

// PlaceOrder matches an order against today's bar at the current reference
// price. A halted security drops the order with a warning and no error.
func (d *Driver) PlaceOrder(ctx context.Context, security market.Security, side portfolio.Side, style portfolio.Style, amount int64) (string, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("security", security.String()),
		attribute.String("side", side.String()),
		attribute.Int64("amount", amount),
	)

	day := market.Midnight(d.currentDt)
	bar := d.barFor(ctx, security, day)
	if bar.Halted() {
		d.logger.Warn().Stringer("Security", security).Time("Day", day).
			Msg("order dropped; security halted")
		return "", nil
	}

	order := portfolio.NewOrder(security, side, style, amount, d.currentDt)
	order.Status = portfolio.StatusSubmitted
	d.orders = append(d.orders, order)

	ref := broker.Ref{
		Price:     d.refPrice(bar),
		HighLimit: bar.HighLimit,
		LowLimit:  bar.LowLimit,
	}

	if d.riskCtl != nil {
		value := float64(amount) * ref.Price
		if err := d.riskCtl.CheckOrder(d.port, security, side, value); err != nil {
			order.Status = portfolio.StatusRejected
			return order.ID, err
		}
	}

	fillCap := d.volumeCap(bar, amount)
	if side == portfolio.Buy {
		return d.fillBuy(order, ref, fillCap)
	}
	return d.fillSell(order, ref, fillCap)
}

// volumeCap is the largest fill the day's volume supports under the
// order_volume_ratio option; a zero ratio disables the cap.
func (d *Driver) volumeCap(bar *data.Bar, requested int64) int64 {
	ratio := d.sc.Options.OrderVolumeRatio
	if ratio <= 0 {
		return requested
	}
	if cap := int64(bar.Volume * ratio); cap < requested {
		return cap
	}
	return requested
}

func (d *Driver) fillBuy(order *portfolio.Order, ref broker.Ref, fillCap int64) (string, error) {
	fill, err := broker.MatchBuy(order, ref, d.slip, d.cost)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}

	if fillCap < fill.Amount {
		capped := market.AdjustBuyAmount(order.Security, fillCap)
		if capped == 0 {
			order.Status = portfolio.StatusRejected
			return order.ID, fmt.Errorf("%w: %s", ErrThinVolume, order.Security)
		}
		fill.Amount = capped
		fill.Commission, fill.Tax = d.cost.BuyFees(fill.Value())
		d.logger.Warn().Stringer("Security", order.Security).Int64("Requested", order.Amount).
			Int64("Filled", capped).Msg("buy capped at volume ratio; remainder cancelled")
	}

	trade, err := d.port.ApplyBuy(order, d.currentDt, fill.Amount, fill.Price, fill.Commission, fill.Tax)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}

	if fill.Amount < order.Amount {
		order.Status = portfolio.StatusCancelled
	} else {
		order.Status = portfolio.StatusFilled
	}
	order.FilledAmount = fill.Amount
	order.AvgFillPrice = fill.Price
	order.Commission = fill.Commission
	order.Tax = fill.Tax
	if d.riskCtl != nil {
		d.riskCtl.RecordTrade(portfolio.Buy, trade.Value())
	}
	d.logger.Info().Stringer("Security", order.Security).Int64("Amount", fill.Amount).
		Float64("Price", fill.Price).Msg("buy filled")
	return order.ID, nil
}

func (d *Driver) fillSell(order *portfolio.Order, ref broker.Ref, fillCap int64) (string, error) {
	var closeable int64
	if pos := d.port.Position(order.Security); pos != nil {
		closeable = pos.CloseableAmount
	}
	if fillCap < closeable {
		closeable = fillCap
	}

	fill, err := broker.MatchSell(order, ref, closeable, d.slip, d.cost)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}

	trade, err := d.port.ApplySell(order, d.currentDt, fill.Amount, fill.Price, fill.Commission, fill.Tax)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}

	order.FilledAmount = fill.Amount
	order.AvgFillPrice = fill.Price
	order.Commission = fill.Commission
	order.Tax = fill.Tax
	if fill.Amount < order.Amount {
		order.Status = portfolio.StatusCancelled
		d.logger.Warn().Stringer("Security", order.Security).Int64("Requested", order.Amount).
			Int64("Filled", fill.Amount).Msg("partial sell; remainder cancelled")
	} else {
		order.Status = portfolio.StatusFilled
	}
	if d.riskCtl != nil {
		d.riskCtl.RecordTrade(portfolio.Sell, trade.Value())
	}
	return order.ID, nil
}

// ReferencePrice is the price orders match against at the virtual clock
func (d *Driver) ReferencePrice(security market.Security) (float64, error) {
	day := market.Midnight(d.currentDt)
	bar := d.barFor(context.Background(), security, day)
	if bar == nil {
		return 0, fmt.Errorf("%w: %s", broker.ErrNoPrice, security)
	}
	return d.refPrice(bar), nil
}

// refPrice implements the match reference: the day's open before the first
// minute-bar close, the latest known close afterward. Daily bars stand in
// for intraday progression.
func (d *Driver) refPrice(bar *data.Bar) float64 {
	day := market.Midnight(d.currentDt)
	if d.currentDt.Before(market.FirstMinuteClose(day, d.config.Periods)) {
		return bar.Open
	}
	return bar.Close
}

func (d *Driver) SetBenchmark(security market.Security) { d.benchmark = security }

func (d *Driver) SetOrderCost(cost broker.OrderCost) { d.cost = cost }

func (d *Driver) SetSlippage(slip broker.Slippage) { d.slip = slip }

// Subscribe is a no-op in backtests; bars arrive through the data manager
func (d *Driver) Subscribe(_ context.Context, securities []market.Security) error {
	d.logger.Debug().Int("Count", len(securities)).Msg("tick subscription ignored in backtest")
	return nil
}

func (d *Driver) Unsubscribe(context.Context, []market.Security) error { return nil }

// SendMsg logs the notification; backtests have no messenger
func (d *Driver) SendMsg(_ context.Context, msg string) error {
	d.logger.Info().Str("Msg", msg).Msg("strategy message")
	return nil
}

// barData adapts the driver's per-day bar cache to the strategy Data view
type barData struct {
	driver *Driver
}

func (b *barData) Current(security market.Security) *data.Quote {
	day := market.Midnight(b.driver.currentDt)
	bar := b.driver.barFor(context.Background(), security, day)
	if bar == nil {
		return nil
	}
	return &data.Quote{
		Security:  security,
		Time:      b.driver.currentDt,
		Price:     b.driver.refPrice(bar),
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Volume:    bar.Volume,
		HighLimit: bar.HighLimit,
		LowLimit:  bar.LowLimit,
		Paused:    bar.Paused,
	}
}
