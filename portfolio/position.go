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

package portfolio

import (
	"math"

	"github.com/lotus-quant/lq-engine/market"
)

// Position is one holding. CloseableAmount tracks the T+1 rule: shares
// bought today raise TotalAmount only and become closeable at the next trade
// day's before-open.
type Position struct {
	Security        market.Security
	TotalAmount     int64
	CloseableAmount int64
	AvgCost         float64
	LastPrice       float64
}

// Value is the mark-to-market worth of the position
func (p *Position) Value() float64 {
	return float64(p.TotalAmount) * p.LastPrice
}

// addShares averages newly bought shares (price plus fees) into the cost
// basis; closeable is untouched.
func (p *Position) addShares(amount int64, price, fees float64) {
	cost := p.AvgCost*float64(p.TotalAmount) + float64(amount)*price + fees
	p.TotalAmount += amount
	p.AvgCost = cost / float64(p.TotalAmount)
	p.LastPrice = price
}

// removeShares decrements both totals; cost basis is unchanged on sells
func (p *Position) removeShares(amount int64, price float64) {
	p.TotalAmount -= amount
	p.CloseableAmount -= amount
	p.LastPrice = price
}

// split multiplies the share count by ratio and scales cost basis inversely
func (p *Position) split(ratio float64) {
	p.TotalAmount = int64(math.Round(float64(p.TotalAmount) * ratio))
	p.CloseableAmount = int64(math.Round(float64(p.CloseableAmount) * ratio))
	if ratio != 0 {
		p.AvgCost /= ratio
		p.LastPrice /= ratio
	}
}
