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

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/lotus-quant/lq-engine/market"
)

// Breaker wraps an Adapter with a circuit breaker so a flapping venue fails
// fast instead of stalling the driver. Order placement and cancellation pass
// through untripped; an unknown order beats a missed one.
type Breaker struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker
}

var _ Adapter = (*Breaker)(nil)

func NewBreaker(inner Adapter, name string) *Breaker {
	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("Broker", name).Stringer("From", from).
				Stringer("To", to).Msg("broker circuit state changed")
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Connect(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Connect(ctx)
	})
	return err
}

func (b *Breaker) Disconnect(ctx context.Context) error {
	return b.inner.Disconnect(ctx)
}

func (b *Breaker) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.AccountInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*AccountInfo), nil
}

func (b *Breaker) Positions(ctx context.Context) ([]*PositionInfo, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Positions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*PositionInfo), nil
}

func (b *Breaker) Buy(ctx context.Context, security market.Security, amount int64, price float64) (string, error) {
	return b.inner.Buy(ctx, security, amount, price)
}

func (b *Breaker) Sell(ctx context.Context, security market.Security, amount int64, price float64) (string, error) {
	return b.inner.Sell(ctx, security, amount, price)
}

func (b *Breaker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return b.inner.CancelOrder(ctx, orderID)
}

func (b *Breaker) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetOrderStatus(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*OrderStatus), nil
}

func (b *Breaker) SyncOrders(ctx context.Context) ([]*OrderStatus, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.SyncOrders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*OrderStatus), nil
}

func (b *Breaker) OpenOrders(ctx context.Context) ([]*OrderStatus, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.OpenOrders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*OrderStatus), nil
}
