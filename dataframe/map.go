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
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/common"
)

// DataFrameMap indexes dataframes by security ticker
type DataFrameMap map[string]*DataFrame

// Align finds the maximum start and minimum end across all dataframes and
// trims them to match
func (dfMap DataFrameMap) Align() DataFrameMap {
	var start time.Time
	var end time.Time

	for _, df := range dfMap {
		end = df.End()
		break
	}

	for _, df := range dfMap {
		start = common.MaxTime(start, df.Start())
		end = common.MinTime(end, df.End())
	}

	dfMapTrimmed := make(DataFrameMap, len(dfMap))
	for k, df := range dfMap {
		dfMapTrimmed[k] = df.Trim(start, end)
	}

	return dfMapTrimmed
}

// DataFrame merges each item of the map into one column of a single frame,
// ordered by ticker so a price panel is reproducible run to run. Frames that
// do not align are trimmed to the max start and min end first.
func (dfMap DataFrameMap) DataFrame() *DataFrame {
	aligned := dfMap.Align()

	keys := make([]string, 0, len(aligned))
	for k := range aligned {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	df := &DataFrame{}
	for _, k := range keys {
		v := aligned[k]
		if len(df.ColNames) == 0 {
			df.Dates = v.Dates
			df.ColNames = v.ColNames
			df.Vals = v.Vals
			continue
		}
		if len(df.Dates) != len(v.Dates) ||
			!df.Start().Equal(v.Start()) ||
			!df.End().Equal(v.End()) {
			log.Panic().Time("df1.Start", df.Start()).Time("df1.End", df.End()).Time("df2.Start", v.Start()).Time("df2.End", v.End()).Msg("date indexes do not match; cannot merge into single dataframe")
		}
		df.ColNames = append(df.ColNames, v.ColNames...)
		df.Vals = append(df.Vals, v.Vals...)
	}

	return df
}
