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

// Package broker defines the adapter interface the engine trades through and
// a simulator implementation that matches orders against reference prices.
package broker

import (
	"context"
	"errors"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

var (
	ErrNotConnected        = errors.New("broker not connected")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNoPrice             = errors.New("no reference price for security")
	ErrPriceCage           = errors.New("price outside the exchange cage")
	ErrBadAmount           = errors.New("amount below the minimum lot")
	ErrHalted              = errors.New("security is halted")
	ErrTooManySubscription = errors.New("subscription limit reached")
)

// AccountInfo is the broker-side cash summary
type AccountInfo struct {
	AccountID   string
	AccountType string
	TotalValue  float64
	Cash        float64
	FrozenCash  float64
}

// PositionInfo is the broker-side view of a holding
type PositionInfo struct {
	Security        market.Security
	TotalAmount     int64
	CloseableAmount int64
	AvgCost         float64
	LastPrice       float64
}

// OrderStatus is the broker-side view of an order, normalized to the
// portfolio taxonomy.
type OrderStatus struct {
	OrderID      string
	Security     market.Security
	Side         portfolio.Side
	Status       portfolio.Status
	Amount       int64
	FilledAmount int64
	AvgFillPrice float64
	Commission   float64
	Tax          float64
}

// Adapter is the engine's contract with an execution venue. PriceOrZero on
// Buy and Sell selects pricing: a positive price is a limit order, zero is a
// market order at the venue's reference price.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	AccountInfo(ctx context.Context) (*AccountInfo, error)
	Positions(ctx context.Context) ([]*PositionInfo, error)

	Buy(ctx context.Context, security market.Security, amount int64, price float64) (string, error)
	Sell(ctx context.Context, security market.Security, amount int64, price float64) (string, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
	SyncOrders(ctx context.Context) ([]*OrderStatus, error)
	OpenOrders(ctx context.Context) ([]*OrderStatus, error)
}

// Subscriber is implemented by adapters that accept tick subscriptions
type Subscriber interface {
	Subscribe(ctx context.Context, securities []market.Security) error
	Unsubscribe(ctx context.Context, securities []market.Security) error
}

// SplitAmount breaks an order amount into consecutive child sizes of at most
// maxVolume shares. A maxVolume of zero or less means no splitting.
func SplitAmount(amount, maxVolume int64) []int64 {
	if maxVolume <= 0 || amount <= maxVolume {
		return []int64{amount}
	}

	children := make([]int64, 0, amount/maxVolume+1)
	for amount > 0 {
		child := amount
		if child > maxVolume {
			child = maxVolume
		}
		children = append(children, child)
		amount -= child
	}
	return children
}
