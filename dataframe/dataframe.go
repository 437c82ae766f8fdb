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
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Append takes the dates and values from other and appends them to df. Columns
// in df that are not in other are filled with NaN. If the start date of other
// is not greater than df's last date then do nothing.
func (df *DataFrame) Append(other *DataFrame) *DataFrame {
	if len(other.Dates) == 0 {
		return df
	}

	if len(df.Dates) != 0 {
		lastDate := df.Dates[len(df.Dates)-1]
		if !other.Dates[0].After(lastDate) {
			return df
		}
	}

	df.Dates = append(df.Dates, other.Dates...)

	colMap := make(map[string]int, len(other.ColNames))
	for colIdx, colName := range other.ColNames {
		colMap[colName] = colIdx
	}

	for colIdx, colName := range df.ColNames {
		if otherColIdx, ok := colMap[colName]; ok {
			df.Vals[colIdx] = append(df.Vals[colIdx], other.Vals[otherColIdx]...)
		} else {
			for ii := 0; ii < len(other.Dates); ii++ {
				df.Vals[colIdx] = append(df.Vals[colIdx], math.NaN())
			}
		}
	}

	return df
}

// AsMap creates a map with the date as the key and the specified column as
// the value
func (df *DataFrame) AsMap(colName string) map[time.Time]float64 {
	res := make(map[time.Time]float64, df.Len())
	colIdx := df.ColIndex(colName)
	if colIdx == -1 {
		return res
	}

	for idx, dt := range df.Dates {
		res[dt] = df.Vals[colIdx][idx]
	}

	return res
}

// ColIndex returns the index of the specified column; -1 if it doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}
	return -1
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// Copy creates a copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// End returns the last date in the dataframe
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

// Frequency resamples the dataframe to the requested frequency and returns a
// new dataframe. Period boundaries are derived from the date index itself so
// that holidays shorten a period rather than drop it.
func (df *DataFrame) Frequency(frequency Frequency) *DataFrame {
	samePeriod, err := periodFunc(frequency)
	if err != nil {
		log.Panic().Err(err).Str("Frequency", string(frequency)).Msg("could not resample dataframe")
	}

	newDates := make([]time.Time, 0, len(df.Dates))
	newVals := make([][]float64, len(df.ColNames))

	begin := frequency == WeekBegin || frequency == MonthBegin || frequency == YearBegin
	for idx, dt := range df.Dates {
		var keep bool
		switch {
		case frequency == Daily:
			keep = true
		case begin:
			keep = idx == 0 || !samePeriod(df.Dates[idx-1], dt)
		default:
			keep = idx == len(df.Dates)-1 || !samePeriod(dt, df.Dates[idx+1])
		}

		if keep {
			newDates = append(newDates, dt)
			for colIdx := range newVals {
				newVals[colIdx] = append(newVals[colIdx], df.Vals[colIdx][idx])
			}
		}
	}

	return &DataFrame{
		Dates:    newDates,
		ColNames: df.ColNames,
		Vals:     newVals,
	}
}

func periodFunc(frequency Frequency) (func(a, b time.Time) bool, error) {
	switch frequency {
	case Daily:
		return func(a, b time.Time) bool { return a.Equal(b) }, nil
	case WeekBegin, WeekEnd:
		return func(a, b time.Time) bool {
			y1, w1 := a.ISOWeek()
			y2, w2 := b.ISOWeek()
			return y1 == y2 && w1 == w2
		}, nil
	case MonthBegin, MonthEnd:
		return func(a, b time.Time) bool {
			return a.Year() == b.Year() && a.Month() == b.Month()
		}, nil
	case YearBegin, YearEnd:
		return func(a, b time.Time) bool { return a.Year() == b.Year() }, nil
	}
	return nil, ErrUnknownFrequency
}

// Lag shifts the dataframe by the specified number of rows, replacing shifted
// values with NaN, and returns a new dataframe
func (df *DataFrame) Lag(n int) *DataFrame {
	df = df.Copy()
	prepend := make([]float64, n)
	for idx := range prepend {
		prepend[idx] = math.NaN()
	}

	for idx := range df.Vals {
		l := len(df.Vals[idx])
		df.Vals[idx] = append(prepend, df.Vals[idx]...)[:l] //nolint:makezero
	}
	return df
}

// Last returns a new dataframe with only the last row of the current one
func (df *DataFrame) Last() *DataFrame {
	if df.Len() == 0 {
		return df
	}

	lastVals := make([][]float64, len(df.ColNames))
	lastRow := len(df.Dates) - 1
	for idx, col := range df.Vals {
		lastVals[idx] = []float64{col[lastRow]}
	}

	return &DataFrame{
		ColNames: df.ColNames,
		Dates:    []time.Time{df.Dates[lastRow]},
		Vals:     lastVals,
	}
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// Start returns the first date of the dataframe
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// Trim the dataframe to the specified date range (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    df.Dates,
		Vals:     df.Vals,
	}

	// requested range is invalid
	if end.Before(begin) {
		df2.Dates = []time.Time{}
		df2.Vals = [][]float64{}
		return df2
	}

	if df.Len() == 0 {
		return df2
	}

	first := df.Dates[0]
	last := df.Dates[len(df.Dates)-1]

	if end.Before(first) || begin.After(last) {
		df2.Dates = []time.Time{}
		df2.Vals = [][]float64{}
		return df2
	}

	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(end)
	})

	if endIdx != len(df.Dates) {
		endIdx++
	}

	df2.Dates = df.Dates[beginIdx:endIdx]
	df2.Vals = make([][]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}
