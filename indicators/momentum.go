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

// Package indicators computes technical signals over price panels
package indicators

import (
	"math"

	"github.com/lotus-quant/lq-engine/dataframe"
)

// Momentum is the fractional price change over lookback rows for every
// column: v[t] / v[t-lookback] - 1. The warm-up period is NaN.
func Momentum(df *dataframe.DataFrame, lookback int) *dataframe.DataFrame {
	return df.Div(df.Lag(lookback)).AddScalar(-1)
}

// LatestScores returns the momentum of each column at the final row. Columns
// whose score is NaN, e.g. from a truncated history, are omitted.
func LatestScores(df *dataframe.DataFrame, lookback int) map[string]float64 {
	mom := Momentum(df, lookback).Last()
	scores := make(map[string]float64, len(mom.ColNames))
	for idx, colName := range mom.ColNames {
		if mom.Len() == 0 {
			continue
		}
		v := mom.Vals[idx][0]
		if math.IsNaN(v) {
			continue
		}
		scores[colName] = v
	}
	return scores
}
