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

// LotRule is the minimum order size and increment for an instrument
type LotRule struct {
	MinLot int64
	Step   int64
}

// InferLotRule returns the lot rule for a security:
//
//	standard stock       100 / 100
//	STAR market (688*)   200 / 1
//	convertible bond     10 / 10
//	Beijing exchange     100 / 1
func InferLotRule(s Security) LotRule {
	switch s.Class() {
	case ClassStar:
		return LotRule{MinLot: 200, Step: 1}
	case ClassConvertibleBond:
		return LotRule{MinLot: 10, Step: 10}
	case ClassBeijing:
		return LotRule{MinLot: 100, Step: 1}
	default:
		return LotRule{MinLot: 100, Step: 100}
	}
}

// AdjustBuyAmount floors amount down to min_lot + k*step; amounts below the
// minimum lot round to zero and are rejected downstream.
func AdjustBuyAmount(s Security, amount int64) int64 {
	rule := InferLotRule(s)
	if amount < rule.MinLot {
		return 0
	}
	return rule.MinLot + (amount-rule.MinLot)/rule.Step*rule.Step
}

// AdjustSellAmount rounds a sell down to the nearest step, allowing an
// odd-lot sell equal to the full closeable balance when that balance is below
// the minimum lot.
func AdjustSellAmount(s Security, amount, closeable int64) int64 {
	if amount > closeable {
		amount = closeable
	}
	if amount <= 0 {
		return 0
	}

	rule := InferLotRule(s)
	if closeable < rule.MinLot && amount == closeable {
		// remnant positions may always be closed in full
		return closeable
	}
	return amount / rule.Step * rule.Step
}
