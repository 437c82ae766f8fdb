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
	"math"

	"github.com/lotus-quant/lq-engine/market"
)

// OrderCost holds the commission and tax schedule for one account
type OrderCost struct {
	// OpenCommission and CloseCommission are rates on traded value
	OpenCommission  float64
	CloseCommission float64
	// MinCommission floors the commission per fill
	MinCommission float64
	// CloseTax is the sell-side stamp tax rate; funds are exempt
	CloseTax float64
}

// DefaultOrderCost is the standard A-share retail schedule
func DefaultOrderCost() OrderCost {
	return OrderCost{
		OpenCommission:  0.0003,
		CloseCommission: 0.0003,
		MinCommission:   5,
		CloseTax:        0.001,
	}
}

// BuyFees returns the commission on a buy of the given traded value
func (c OrderCost) BuyFees(value float64) (commission, tax float64) {
	return math.Max(c.MinCommission, value*c.OpenCommission), 0
}

// SellFees returns the commission and stamp tax on a sell
func (c OrderCost) SellFees(s market.Security, value float64) (commission, tax float64) {
	commission = math.Max(c.MinCommission, value*c.CloseCommission)
	if !s.IsFund() {
		tax = value * c.CloseTax
	}
	return commission, tax
}

// Slippage shifts the match reference price against the order before cage
// clamping and tick rounding.
type Slippage struct {
	BuyPercent  float64
	SellPercent float64
}

// FixedSlippage builds a symmetric slippage: buys pay percent more, sells
// receive percent less.
func FixedSlippage(percent float64) Slippage {
	return Slippage{BuyPercent: percent, SellPercent: -percent}
}

// DefaultSlippage matches the engine default of 0.1 percent against the order
func DefaultSlippage() Slippage {
	return FixedSlippage(0.001)
}
