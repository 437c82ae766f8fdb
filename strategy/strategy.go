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

// Package strategy defines the contract between user strategies and the
// drivers: the callback interface, the runtime context, and the persisted
// globals bag.
package strategy

import (
	"context"

	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
)

// Data is the per-callback market snapshot passed to HandleData
type Data interface {
	// Current returns the latest quote for a security at the virtual clock,
	// or nil when none is known.
	Current(security market.Security) *data.Quote
}

// Strategy is the set of callbacks a trading strategy may implement.
// Initialize runs once per process; ProcessInitialize also runs on each
// reconnect. The remaining three bracket every trade day.
type Strategy interface {
	Initialize(ctx context.Context, sc *Context) error
	ProcessInitialize(ctx context.Context, sc *Context) error
	BeforeTradingStart(ctx context.Context, sc *Context) error
	HandleData(ctx context.Context, sc *Context, d Data) error
	AfterTradingEnd(ctx context.Context, sc *Context) error
}

// Base is a no-op Strategy for embedding so strategies implement only the
// callbacks they care about.
type Base struct{}

func (Base) Initialize(context.Context, *Context) error         { return nil }
func (Base) ProcessInitialize(context.Context, *Context) error  { return nil }
func (Base) BeforeTradingStart(context.Context, *Context) error { return nil }
func (Base) HandleData(context.Context, *Context, Data) error   { return nil }
func (Base) AfterTradingEnd(context.Context, *Context) error    { return nil }

var _ Strategy = Base{}
