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

package dataframe

import (
	"math"

	"github.com/rs/zerolog/log"
)

// AddScalar adds a constant to every value and returns a new frame. The
// receiver is left untouched.
func (df *DataFrame) AddScalar(scalar float64) *DataFrame {
	out := df.Copy()
	for _, col := range out.Vals {
		for i := range col {
			col[i] += scalar
		}
	}
	return out
}

// Div divides each column by the same-named column of other and returns a
// new frame. Columns with no counterpart in other become NaN so downstream
// consumers treat them as missing data. Row counts must match.
func (df *DataFrame) Div(other *DataFrame) *DataFrame {
	out := df.Copy()

	otherIdx := make(map[string]int, len(other.ColNames))
	for i, name := range other.ColNames {
		otherIdx[name] = i
	}

	for i, name := range out.ColNames {
		j, ok := otherIdx[name]
		if !ok {
			for k := range out.Vals[i] {
				out.Vals[i][k] = math.NaN()
			}
			continue
		}
		for k := range out.Vals[i] {
			out.Vals[i][k] /= other.Vals[j][k]
		}
	}
	return out
}

// SMA computes a per-column simple moving average over lookback rows and
// returns a new frame of the same shape. Rows inside the warm-up window are
// NaN. A lookback outside 1..Len yields a frame of all NaN, since a
// crossover strategy asking for more history than it fetched should see no
// signal rather than a truncated one.
func (df *DataFrame) SMA(lookback int) *DataFrame {
	out := &DataFrame{
		Dates:    df.Dates,
		ColNames: df.ColNames,
		Vals:     make([][]float64, df.ColCount()),
	}
	for i := range out.Vals {
		out.Vals[i] = make([]float64, df.Len())
		for k := range out.Vals[i] {
			out.Vals[i][k] = math.NaN()
		}
	}

	if lookback <= 0 || lookback > df.Len() {
		log.Error().Int("Lookback", lookback).Int("NRows", df.Len()).
			Msg("sma lookback outside the frame's row count")
		return out
	}

	for i, col := range df.Vals {
		sum := 0.0
		for k, v := range col {
			sum += v
			if k >= lookback {
				sum -= col[k-lookback]
			}
			if k >= lookback-1 {
				out.Vals[i][k] = sum / float64(lookback)
			}
		}
	}
	return out
}
