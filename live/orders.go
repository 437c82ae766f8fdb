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

package live

import (
	"context"
	"fmt"
	"time"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/scheduler"
	"github.com/lotus-quant/lq-engine/strategy"
)

// pollInterval between order status queries while waiting for a terminal
// status
const pollInterval = time.Second

func (d *Driver) CurrentDt() time.Time { return d.currentDt }

func (d *Driver) Portfolio() *portfolio.Portfolio { return d.port }

func (d *Driver) Scheduler() *scheduler.Scheduler { return d.sched }

func (d *Driver) Data() *data.Manager { return d.manager }

// CurrentData serves live quotes through the provider
func (d *Driver) CurrentData() strategy.Data {
	return &liveData{driver: d}
}

// PlaceOrder routes the order to the broker adapter, splitting it into
// children of at most order_max_volume shares. The first child's id is
// returned; every child is polled toward a terminal status subject to
// trade_max_wait_time.
func (d *Driver) PlaceOrder(ctx context.Context, security market.Security, side portfolio.Side, style portfolio.Style, amount int64) (string, error) {
	if d.riskCtl != nil {
		price, err := d.ReferencePrice(security)
		if err != nil {
			return "", err
		}
		if err := d.riskCtl.CheckOrder(d.port, security, side, float64(amount)*price); err != nil {
			return "", err
		}
	}

	var limit float64
	if style.Kind == portfolio.StyleLimit {
		limit = style.Price
	}

	var firstID string
	for _, child := range broker.SplitAmount(amount, d.sc.Options.OrderMaxVolume) {
		var id string
		var err error
		if side == portfolio.Buy {
			id, err = d.adapter.Buy(ctx, security, child, limit)
		} else {
			id, err = d.adapter.Sell(ctx, security, child, limit)
		}
		if err != nil {
			if firstID == "" {
				return "", err
			}
			d.logger.Error().Err(err).Stringer("Security", security).
				Int64("Amount", child).Msg("child order failed; siblings already placed")
			return firstID, err
		}
		if firstID == "" {
			firstID = id
		}

		order := d.track(security, side, style, id, child)
		if status, err := d.awaitOrder(ctx, id); err == nil && status != nil {
			d.settle(order, status)
		}
	}
	return firstID, nil
}

// track records a freshly placed child order so the status API and the
// reconciliation loop see it before the first fill lands
func (d *Driver) track(security market.Security, side portfolio.Side, style portfolio.Style, id string, amount int64) *portfolio.Order {
	order := portfolio.NewOrder(security, side, style, amount, d.currentDt)
	order.ID = id
	order.Status = portfolio.StatusSubmitted
	d.orders = append(d.orders, order)
	return order
}

// awaitOrder polls the order toward a terminal status. A wait time of zero
// fires and forgets; a timeout leaves the order to the reconciliation loop.
func (d *Driver) awaitOrder(ctx context.Context, orderID string) (*broker.OrderStatus, error) {
	waitSeconds := d.sc.Options.TradeMaxWaitTime
	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)

	for {
		status, err := d.adapter.GetOrderStatus(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if status.Status.Terminal() {
			return status, nil
		}
		if waitSeconds <= 0 || time.Now().After(deadline) {
			d.logger.Info().Str("OrderID", orderID).Str("Status", string(status.Status)).
				Msg("not waiting for terminal order status")
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// settle folds the venue's view of an order into the local ledger, booking
// only the fill delta since the last sync. Commission and tax are
// cumulative on the venue side, so the tranche gets their increments.
func (d *Driver) settle(order *portfolio.Order, status *broker.OrderStatus) {
	delta := status.FilledAmount - order.FilledAmount
	if delta > 0 {
		price := status.AvgFillPrice
		if order.FilledAmount > 0 {
			price = (float64(status.FilledAmount)*status.AvgFillPrice -
				float64(order.FilledAmount)*order.AvgFillPrice) / float64(delta)
		}
		commission := status.Commission - order.Commission
		tax := status.Tax - order.Tax

		var err error
		if order.Side == portfolio.Buy {
			_, err = d.port.ApplyBuy(order, d.currentDt, delta, price, commission, tax)
		} else {
			_, err = d.port.ApplySell(order, d.currentDt, delta, price, commission, tax)
		}
		if err != nil {
			d.logger.Error().Err(err).Str("OrderID", order.ID).
				Msg("ledger out of sync with broker fill")
			return
		}
		if d.riskCtl != nil {
			d.riskCtl.RecordTrade(order.Side, float64(delta)*price)
		}
	}

	order.Status = status.Status
	order.FilledAmount = status.FilledAmount
	order.AvgFillPrice = status.AvgFillPrice
	order.Commission = status.Commission
	order.Tax = status.Tax
}

// reconcileOrders folds fills discovered out of band into the ledger. Orders
// whose local copy is already terminal are skipped; unknown venue orders
// are adopted so externally placed trades reach the ledger too.
func (d *Driver) reconcileOrders(ctx context.Context) error {
	statuses, err := d.adapter.SyncOrders(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]*portfolio.Order, len(d.orders))
	for _, o := range d.orders {
		known[o.ID] = o
	}

	for _, status := range statuses {
		if local, ok := known[status.OrderID]; ok {
			if local.Status.Terminal() {
				continue
			}
			d.settle(local, status)
			continue
		}
		if status.FilledAmount > 0 || !status.Status.Terminal() {
			d.logger.Info().Str("OrderID", status.OrderID).
				Msg("adopting externally placed order")
			adopted := d.track(status.Security, status.Side, portfolio.MarketStyle(0), status.OrderID, status.Amount)
			d.settle(adopted, status)
		}
	}
	return nil
}

// ReferencePrice is the venue's last price
func (d *Driver) ReferencePrice(security market.Security) (float64, error) {
	quotes, err := d.manager.GetLiveCurrent(context.Background(), []market.Security{security})
	if err != nil {
		return 0, err
	}
	if len(quotes) == 0 || quotes[0].Price <= 0 {
		return 0, fmt.Errorf("%w: %s", broker.ErrNoPrice, security)
	}
	return quotes[0].Price, nil
}

func (d *Driver) SetBenchmark(security market.Security) { d.benchmark = security }

// SetOrderCost is venue-side in live mode; recorded for reporting only
func (d *Driver) SetOrderCost(broker.OrderCost) {}

// SetSlippage is venue-side in live mode
func (d *Driver) SetSlippage(broker.Slippage) {}

// Subscribe forwards tick subscriptions to adapters that support them
func (d *Driver) Subscribe(ctx context.Context, securities []market.Security) error {
	sub, ok := d.adapter.(broker.Subscriber)
	if !ok {
		d.logger.Warn().Msg("broker adapter has no tick feed; subscribe ignored")
		return nil
	}
	return sub.Subscribe(ctx, securities)
}

func (d *Driver) Unsubscribe(ctx context.Context, securities []market.Security) error {
	sub, ok := d.adapter.(broker.Subscriber)
	if !ok {
		return nil
	}
	return sub.Unsubscribe(ctx, securities)
}

// SendMsg delivers through the messenger, falling back to the log
func (d *Driver) SendMsg(ctx context.Context, msg string) error {
	return d.msgr.Send(ctx, msg)
}

// Orders returns all orders placed this session
func (d *Driver) Orders() []*portfolio.Order {
	out := make([]*portfolio.Order, len(d.orders))
	copy(out, d.orders)
	return out
}

type liveData struct {
	driver *Driver
}

func (l *liveData) Current(security market.Security) *data.Quote {
	quotes, err := l.driver.manager.GetLiveCurrent(context.Background(), []market.Security{security})
	if err != nil || len(quotes) == 0 {
		return nil
	}
	return quotes[0]
}
