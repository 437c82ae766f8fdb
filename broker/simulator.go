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

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

// SimulatorMaxSubscriptions caps tick subscriptions in simulator mode
const SimulatorMaxSubscriptions = 100

// Simulator is an in-memory venue that fills orders immediately at mocked
// reference prices. The T+1 hold is the engine's job, so simulator holdings
// are closeable as soon as they settle.
type Simulator struct {
	mu        sync.Mutex
	connected bool

	port   *portfolio.Portfolio
	prices map[market.Security]Ref
	orders map[string]*portfolio.Order
	subs   map[market.Security]bool

	cost OrderCost
	slip Slippage
	now  func() time.Time
}

var _ Adapter = (*Simulator)(nil)

func NewSimulator(cash float64) *Simulator {
	return &Simulator{
		port:   portfolio.NewPortfolio(cash),
		prices: make(map[market.Security]Ref),
		orders: make(map[string]*portfolio.Order),
		subs:   make(map[market.Security]bool),
		cost:   DefaultOrderCost(),
		now:    time.Now,
	}
}

// SetMockPrice sets the reference price the next orders match against
func (s *Simulator) SetMockPrice(security market.Security, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[security] = Ref{Price: price}
}

// SetMockRef sets the full reference including the day's limit band
func (s *Simulator) SetMockRef(security market.Security, ref Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[security] = ref
}

// SetOrderCost replaces the commission schedule
func (s *Simulator) SetOrderCost(cost OrderCost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost = cost
}

// SetSlippage replaces the slippage model
func (s *Simulator) SetSlippage(slip Slippage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slip = slip
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	log.Info().Str("Broker", "simulator").Msg("broker connected")
	return nil
}

func (s *Simulator) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) AccountInfo(_ context.Context) (*AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	return &AccountInfo{
		AccountID:   "simulator",
		AccountType: "stock",
		TotalValue:  s.port.TotalValue(),
		Cash:        s.port.Cash,
	}, nil
}

func (s *Simulator) Positions(_ context.Context) ([]*PositionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}

	positions := s.port.Positions()
	out := make([]*PositionInfo, 0, len(positions))
	for _, pos := range positions {
		out = append(out, &PositionInfo{
			Security:        pos.Security,
			TotalAmount:     pos.TotalAmount,
			CloseableAmount: pos.CloseableAmount,
			AvgCost:         pos.AvgCost,
			LastPrice:       pos.LastPrice,
		})
	}
	return out, nil
}

// Buy fills immediately at the mocked reference. A positive price places a
// limit order, zero a market order.
func (s *Simulator) Buy(_ context.Context, security market.Security, amount int64, price float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrBadAmount, amount)
	}

	ref, ok := s.prices[security]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPrice, security)
	}

	order := portfolio.NewOrder(security, portfolio.Buy, styleFor(price), amount, s.now())
	order.Status = portfolio.StatusSubmitted
	s.orders[order.ID] = order

	fill, err := MatchBuy(order, ref, s.slip, s.cost)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}
	if _, err := s.port.ApplyBuy(order, s.now(), fill.Amount, fill.Price, fill.Commission, fill.Tax); err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}
	// broker-side holdings sell same day; the engine enforces T+1
	s.port.UpdateCloseable()

	order.Status = portfolio.StatusFilled
	order.FilledAmount = fill.Amount
	order.AvgFillPrice = fill.Price
	order.Commission = fill.Commission
	order.Tax = fill.Tax
	return order.ID, nil
}

// Sell fills up to the closeable balance and cancels the remainder
func (s *Simulator) Sell(_ context.Context, security market.Security, amount int64, price float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrBadAmount, amount)
	}

	ref, ok := s.prices[security]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPrice, security)
	}

	var closeable int64
	if pos := s.port.Position(security); pos != nil {
		closeable = pos.CloseableAmount
	}

	order := portfolio.NewOrder(security, portfolio.Sell, styleFor(price), amount, s.now())
	order.Status = portfolio.StatusSubmitted
	s.orders[order.ID] = order

	fill, err := MatchSell(order, ref, closeable, s.slip, s.cost)
	if err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}
	if _, err := s.port.ApplySell(order, s.now(), fill.Amount, fill.Price, fill.Commission, fill.Tax); err != nil {
		order.Status = portfolio.StatusRejected
		return order.ID, err
	}

	order.FilledAmount = fill.Amount
	order.AvgFillPrice = fill.Price
	order.Commission = fill.Commission
	order.Tax = fill.Tax
	if fill.Amount < amount {
		// remainder of a partial sell is cancelled, not left working
		order.Status = portfolio.StatusCancelled
		log.Warn().Stringer("Security", security).Int64("Requested", amount).
			Int64("Filled", fill.Amount).Msg("partial sell; remainder cancelled")
	} else {
		order.Status = portfolio.StatusFilled
	}
	return order.ID, nil
}

func (s *Simulator) CancelOrder(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if order.Status.Terminal() {
		return false, nil
	}
	order.Status = portfolio.StatusCancelled
	return true, nil
}

func (s *Simulator) GetOrderStatus(_ context.Context, orderID string) (*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return statusOf(order), nil
}

func (s *Simulator) SyncOrders(_ context.Context) ([]*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*OrderStatus, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, statusOf(order))
	}
	return out, nil
}

func (s *Simulator) OpenOrders(_ context.Context) ([]*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*OrderStatus, 0)
	for _, order := range s.orders {
		if !order.Status.Terminal() {
			out = append(out, statusOf(order))
		}
	}
	return out, nil
}

// Subscribe registers tick subscriptions, capped at
// SimulatorMaxSubscriptions total.
func (s *Simulator) Subscribe(_ context.Context, securities []market.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sec := range securities {
		if !s.subs[sec] && len(s.subs) >= SimulatorMaxSubscriptions {
			return fmt.Errorf("%w: %d", ErrTooManySubscription, SimulatorMaxSubscriptions)
		}
		s.subs[sec] = true
	}
	return nil
}

func (s *Simulator) Unsubscribe(_ context.Context, securities []market.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range securities {
		delete(s.subs, sec)
	}
	return nil
}

// Subscriptions returns the active subscription count
func (s *Simulator) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func styleFor(price float64) portfolio.Style {
	if price > 0 {
		return portfolio.LimitStyle(price)
	}
	return portfolio.MarketStyle(0)
}

func statusOf(order *portfolio.Order) *OrderStatus {
	return &OrderStatus{
		OrderID:      order.ID,
		Security:     order.Security,
		Side:         order.Side,
		Status:       order.Status,
		Amount:       order.Amount,
		FilledAmount: order.FilledAmount,
		AvgFillPrice: order.AvgFillPrice,
		Commission:   order.Commission,
		Tax:          order.Tax,
	}
}
