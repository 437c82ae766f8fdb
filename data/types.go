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

package data

import (
	"time"

	"github.com/lotus-quant/lq-engine/market"
)

// Metric names select which field GetPrice returns
const (
	MetricOpen      = "open"
	MetricHigh      = "high"
	MetricLow       = "low"
	MetricClose     = "close"
	MetricVolume    = "volume"
	MetricHighLimit = "high_limit"
	MetricLowLimit  = "low_limit"
)

// Bar is one day (or minute) of market data for a single security
type Bar struct {
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	HighLimit float64
	LowLimit  float64
	Paused    bool
}

// Halted reports whether the bar shows no trading activity. Missing bars are
// represented by a zero Bar, which is also halted.
func (b *Bar) Halted() bool {
	return b == nil || b.Paused || b.Volume == 0
}

// SecurityInfo describes one listed instrument
type SecurityInfo struct {
	Security   market.Security
	Name       string
	ListDate   time.Time
	DelistDate time.Time
}

// CorporateAction is a split and/or dividend taking effect on the ex date.
// Cash payout on N shares is N / PerBase * BonusPreTax, taxed 20% for stock
// types and untaxed for funds; the dividend is computed on the pre-split
// share count.
type CorporateAction struct {
	Security market.Security
	ExDate   time.Time
	// PerBase is the payout base: 1 for funds, 10 for stocks
	PerBase int
	// BonusPreTax is pre-tax cash paid per PerBase shares
	BonusPreTax float64
	// ScaleFactor multiplies the share count; 1.25 turns 100 shares into 125
	ScaleFactor float64
}

// Quote is a live market snapshot
type Quote struct {
	Security  market.Security
	Time      time.Time
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Volume    float64
	HighLimit float64
	LowLimit  float64
	Paused    bool
}
