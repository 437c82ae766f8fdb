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

package dataframe_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/dataframe"
)

var _ = Describe("DataFrame", func() {
	var (
		tz *time.Location
		df *dataframe.DataFrame
	)

	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, tz)
	}

	BeforeEach(func() {
		var err error
		tz, err = time.LoadLocation("Asia/Shanghai")
		Expect(err).NotTo(HaveOccurred())

		// 2024-06-12 (Wed) through 2024-07-02 (Tue), weekdays only
		dates := []time.Time{}
		for d := date(2024, time.June, 12); !d.After(date(2024, time.July, 2)); d = d.AddDate(0, 0, 1) {
			if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
				dates = append(dates, d)
			}
		}

		closeCol := make([]float64, len(dates))
		volCol := make([]float64, len(dates))
		for idx := range dates {
			closeCol[idx] = 10.0 + float64(idx)*0.1
			volCol[idx] = float64(1000 * (idx + 1))
		}

		df = &dataframe.DataFrame{
			Dates:    dates,
			ColNames: []string{"600000.XSHG", "000001.XSHE"},
			Vals:     [][]float64{closeCol, volCol},
		}
	})

	Context("basic accessors", func() {
		It("reports length and column count", func() {
			Expect(df.Len()).To(Equal(15))
			Expect(df.ColCount()).To(Equal(2))
		})

		It("reports start and end dates", func() {
			Expect(df.Start()).To(Equal(date(2024, time.June, 12)))
			Expect(df.End()).To(Equal(date(2024, time.July, 2)))
		})

		It("finds column indexes", func() {
			Expect(df.ColIndex("000001.XSHE")).To(Equal(1))
			Expect(df.ColIndex("999999.XSHG")).To(Equal(-1))
		})
	})

	Context("when trimming", func() {
		It("keeps an inclusive range", func() {
			trimmed := df.Trim(date(2024, time.June, 17), date(2024, time.June, 21))
			Expect(trimmed.Len()).To(Equal(5))
			Expect(trimmed.Start()).To(Equal(date(2024, time.June, 17)))
			Expect(trimmed.End()).To(Equal(date(2024, time.June, 21)))
		})

		It("returns empty for a disjoint range", func() {
			trimmed := df.Trim(date(2024, time.August, 1), date(2024, time.August, 31))
			Expect(trimmed.Len()).To(Equal(0))
		})

		It("returns empty for an inverted range", func() {
			trimmed := df.Trim(date(2024, time.June, 21), date(2024, time.June, 17))
			Expect(trimmed.Len()).To(Equal(0))
		})

		It("does not modify the original dataframe", func() {
			_ = df.Trim(date(2024, time.June, 17), date(2024, time.June, 21))
			Expect(df.Len()).To(Equal(15))
		})
	})

	Context("when resampling", func() {
		It("keeps week-end rows", func() {
			weekly := df.Frequency(dataframe.WeekEnd)
			Expect(weekly.Dates).To(Equal([]time.Time{
				date(2024, time.June, 14),
				date(2024, time.June, 21),
				date(2024, time.June, 28),
				date(2024, time.July, 2),
			}))
		})

		It("keeps week-begin rows", func() {
			weekly := df.Frequency(dataframe.WeekBegin)
			Expect(weekly.Dates).To(Equal([]time.Time{
				date(2024, time.June, 12),
				date(2024, time.June, 17),
				date(2024, time.June, 24),
				date(2024, time.July, 1),
			}))
		})

		It("keeps month-end rows", func() {
			monthly := df.Frequency(dataframe.MonthEnd)
			Expect(monthly.Dates).To(Equal([]time.Time{
				date(2024, time.June, 28),
				date(2024, time.July, 2),
			}))
		})

		It("passes every row through for daily", func() {
			daily := df.Frequency(dataframe.Daily)
			Expect(daily.Len()).To(Equal(df.Len()))
		})
	})

	Context("when appending", func() {
		It("fills missing columns with NaN", func() {
			other := &dataframe.DataFrame{
				Dates:    []time.Time{date(2024, time.July, 3)},
				ColNames: []string{"600000.XSHG"},
				Vals:     [][]float64{{12.5}},
			}
			df.Append(other)
			Expect(df.Len()).To(Equal(16))
			Expect(df.Vals[0][15]).To(Equal(12.5))
			Expect(math.IsNaN(df.Vals[1][15])).To(BeTrue())
		})

		It("ignores frames that start before the last date", func() {
			other := &dataframe.DataFrame{
				Dates:    []time.Time{date(2024, time.June, 20)},
				ColNames: []string{"600000.XSHG"},
				Vals:     [][]float64{{12.5}},
			}
			df.Append(other)
			Expect(df.Len()).To(Equal(15))
		})
	})

	Context("row access helpers", func() {
		It("returns the last row", func() {
			last := df.Last()
			Expect(last.Len()).To(Equal(1))
			Expect(last.Start()).To(Equal(date(2024, time.July, 2)))
			Expect(last.Vals[0][0]).To(BeNumerically("~", 11.4, 1e-9))
		})

		It("converts a column to a date map", func() {
			m := df.AsMap("600000.XSHG")
			Expect(m).To(HaveLen(15))
			Expect(m[date(2024, time.June, 12)]).To(Equal(10.0))
		})

		It("lags values forward", func() {
			lagged := df.Lag(1)
			Expect(math.IsNaN(lagged.Vals[0][0])).To(BeTrue())
			Expect(lagged.Vals[0][1]).To(Equal(10.0))
		})
	})

	Context("map operations", func() {
		It("aligns frames to their common range", func() {
			short := df.Trim(date(2024, time.June, 17), date(2024, time.June, 28)).Copy()
			m := dataframe.DataFrameMap{
				"full":  df,
				"short": short,
			}
			aligned := m.Align()
			Expect(aligned["full"].Start()).To(Equal(date(2024, time.June, 17)))
			Expect(aligned["full"].End()).To(Equal(date(2024, time.June, 28)))
			Expect(aligned["full"].Len()).To(Equal(aligned["short"].Len()))
		})

		It("merges into one frame with columns ordered by ticker", func() {
			a := df.Copy()
			a.ColNames = []string{"600519.XSHG"}
			a.Vals = a.Vals[:1]
			b := df.Copy()
			b.ColNames = []string{"000001.XSHE"}
			b.Vals = b.Vals[:1]

			merged := dataframe.DataFrameMap{
				"600519.XSHG": a,
				"000001.XSHE": b,
			}.DataFrame()
			Expect(merged.ColNames).To(Equal([]string{"000001.XSHE", "600519.XSHG"}))
			Expect(merged.ColCount()).To(Equal(2))
			Expect(merged.Len()).To(Equal(df.Len()))
		})
	})
})
