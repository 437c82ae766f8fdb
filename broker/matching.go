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
	"fmt"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

// Ref is the match reference at one timepoint: the price orders execute
// against plus the day's limit band when known (zero means unknown).
type Ref struct {
	Price     float64
	HighLimit float64
	LowLimit  float64
}

// Fill is the priced result of matching an order
type Fill struct {
	Amount     int64
	Price      float64
	Commission float64
	Tax        float64
}

// Value is the traded notional excluding fees
func (f *Fill) Value() float64 {
	return float64(f.Amount) * f.Price
}

// MatchBuy prices a buy against the reference. The execution price is the
// reference shifted by slippage and rounded up to the tick; the order is
// rejected when that price breaches the cage, the limit-up price, or a limit
// order's price.
func MatchBuy(order *portfolio.Order, ref Ref, slip Slippage, cost OrderCost) (*Fill, error) {
	if ref.Price <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, order.Security)
	}

	tick := market.MinPriceStep(order.Security, ref.Price)
	exec := market.RoundToTick(market.ApplySlippage(ref.Price, slip.BuyPercent), tick, true)

	buyUpper, _ := market.PriceBounds(order.Security, ref.Price, tick)
	if exec > buyUpper {
		return nil, fmt.Errorf("%w: buy %.3f above cage %.3f", ErrPriceCage, exec, buyUpper)
	}
	if ref.HighLimit > 0 && exec > ref.HighLimit {
		return nil, fmt.Errorf("%w: buy %.3f above limit-up %.3f", ErrPriceCage, exec, ref.HighLimit)
	}

	switch order.Style.Kind {
	case portfolio.StyleLimit:
		if order.Style.Price < exec {
			return nil, fmt.Errorf("%w: limit %.3f below execution price %.3f",
				ErrPriceCage, order.Style.Price, exec)
		}
	case portfolio.StyleMarket:
		if order.Style.ProtectPercent > 0 {
			protect := market.MarketProtectPrice(order.Security, ref.Price,
				ref.HighLimit, ref.LowLimit, order.Style.ProtectPercent, true)
			if protect < exec {
				return nil, fmt.Errorf("%w: protect %.3f below execution price %.3f",
					ErrPriceCage, protect, exec)
			}
		}
	}

	fill := &Fill{Amount: order.Amount, Price: exec}
	fill.Commission, fill.Tax = cost.BuyFees(fill.Value())
	return fill, nil
}

// MatchSell prices a sell against the reference, filling up to the closeable
// balance. Callers cancel the unfilled remainder.
func MatchSell(order *portfolio.Order, ref Ref, closeable int64, slip Slippage, cost OrderCost) (*Fill, error) {
	if ref.Price <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, order.Security)
	}

	tick := market.MinPriceStep(order.Security, ref.Price)
	exec := market.RoundToTick(market.ApplySlippage(ref.Price, slip.SellPercent), tick, false)

	_, sellLower := market.PriceBounds(order.Security, ref.Price, tick)
	if exec < sellLower {
		return nil, fmt.Errorf("%w: sell %.3f below cage %.3f", ErrPriceCage, exec, sellLower)
	}
	if ref.LowLimit > 0 && exec < ref.LowLimit {
		return nil, fmt.Errorf("%w: sell %.3f below limit-down %.3f", ErrPriceCage, exec, ref.LowLimit)
	}

	if order.Style.Kind == portfolio.StyleLimit && order.Style.Price > exec {
		return nil, fmt.Errorf("%w: limit %.3f above execution price %.3f",
			ErrPriceCage, order.Style.Price, exec)
	}

	amount := order.Amount
	if amount > closeable {
		amount = closeable
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %s", portfolio.ErrInsufficientCloseable, order.Security)
	}

	fill := &Fill{Amount: amount, Price: exec}
	fill.Commission, fill.Tax = cost.SellFees(order.Security, fill.Value())
	return fill, nil
}
