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

package market

import "math"

// MinPriceStep returns the tick for a security at the given price level.
// Funds tick at 0.001; shares tick at 0.01 above one yuan, 0.001 below.
func MinPriceStep(s Security, price float64) float64 {
	if s.IsFund() {
		return 0.001
	}
	if price >= 1.0 {
		return 0.01
	}
	return 0.001
}

// RoundToTick rounds price onto the tick grid. Buys round up to the next
// tick, sells down, so rounding never makes an order less aggressive than
// the price the strategy asked for.
func RoundToTick(price, tick float64, buy bool) float64 {
	steps := price / tick
	if buy {
		steps = math.Ceil(steps - 1e-9)
	} else {
		steps = math.Floor(steps + 1e-9)
	}
	// snap to 3 decimal places to shed float artifacts
	return math.Round(steps*tick*1000) / 1000
}

// PriceBounds returns the buy-upper and sell-lower cage around the match
// reference price. Main boards use 2 percent; Beijing widens to 5 percent or
// one dime, whichever is larger.
func PriceBounds(s Security, ref, tick float64) (buyUpper, sellLower float64) {
	if s.Exchange == Beijing {
		buyUpper = math.Max(ref*1.05, ref+0.1)
		sellLower = math.Min(ref*0.95, ref-0.1)
	} else {
		buyUpper = ref * 1.02
		sellLower = ref * 0.98
	}
	buyUpper = RoundToTick(buyUpper, tick, false)
	sellLower = RoundToTick(sellLower, tick, true)
	return buyUpper, sellLower
}

// MarketProtectPrice computes the limit price a market order is protected
// at: ref*(1+percent) clamped to the cage and the day's limit prices.
func MarketProtectPrice(s Security, ref, highLimit, lowLimit, percent float64, buy bool) float64 {
	tick := MinPriceStep(s, ref)
	buyUpper, sellLower := PriceBounds(s, ref, tick)

	price := ref * (1 + percent)
	if buy {
		price = math.Min(price, buyUpper)
		if highLimit > 0 {
			price = math.Min(price, highLimit)
		}
		return RoundToTick(price, tick, false)
	}

	price = math.Max(price, sellLower)
	if lowLimit > 0 {
		price = math.Max(price, lowLimit)
	}
	return RoundToTick(price, tick, true)
}

// ApplySlippage shifts the reference price by the configured percent before
// cage clamping and tick rounding.
func ApplySlippage(ref, percent float64) float64 {
	return ref * (1 + percent)
}
