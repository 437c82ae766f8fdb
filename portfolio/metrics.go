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

	"gonum.org/v1/gonum/stat"
)

// TradeDaysPerYear for annualization of a daily A-share series
const TradeDaysPerYear = 244

// Metrics summarizes a backtest's daily value series
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
}

// CalculateMetrics computes summary statistics over the portfolio's daily
// records. The risk-free rate is annual; fewer than two records yield the
// zero value.
func CalculateMetrics(records []*DailyRecord, riskFreeRate float64) *Metrics {
	m := &Metrics{}
	if len(records) < 2 {
		return m
	}

	first := records[0].TotalValue
	last := records[len(records)-1].TotalValue
	if first > 0 {
		m.TotalReturn = last/first - 1
	}

	years := float64(len(records)) / TradeDaysPerYear
	if years > 0 && first > 0 && last > 0 {
		m.AnnualizedReturn = math.Pow(last/first, 1/years) - 1
	}

	daily := make([]float64, 0, len(records)-1)
	wins := 0
	for i := 1; i < len(records); i++ {
		prev := records[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		r := records[i].TotalValue/prev - 1
		daily = append(daily, r)
		if r > 0 {
			wins++
		}
	}

	if len(daily) > 1 {
		sd := stat.StdDev(daily, nil)
		m.Volatility = sd * math.Sqrt(TradeDaysPerYear)
		if m.Volatility > 0 {
			m.SharpeRatio = (m.AnnualizedReturn - riskFreeRate) / m.Volatility
		}
		m.WinRate = float64(wins) / float64(len(daily))
	}

	m.MaxDrawdown = MaxDrawdown(records)
	return m
}

// MaxDrawdown is the largest peak-to-trough loss in the value series,
// expressed as a positive fraction.
func MaxDrawdown(records []*DailyRecord) float64 {
	var peak, worst float64
	for _, rec := range records {
		if rec.TotalValue > peak {
			peak = rec.TotalValue
		}
		if peak > 0 {
			dd := 1 - rec.TotalValue/peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
