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

var _ = Describe("DataFrame math", func() {
	var df *dataframe.DataFrame

	BeforeEach(func() {
		tz, err := time.LoadLocation("Asia/Shanghai")
		Expect(err).NotTo(HaveOccurred())

		dates := make([]time.Time, 5)
		vals := make([]float64, 5)
		for idx := range dates {
			dates[idx] = time.Date(2024, time.June, 17+idx, 0, 0, 0, 0, tz)
			vals[idx] = float64(idx + 1)
		}

		df = &dataframe.DataFrame{
			Dates:    dates,
			ColNames: []string{"600000.XSHG"},
			Vals:     [][]float64{vals},
		}
	})

	It("computes a simple moving average with NaN warm-up", func() {
		sma := df.SMA(3)
		Expect(math.IsNaN(sma.Vals[0][0])).To(BeTrue())
		Expect(math.IsNaN(sma.Vals[0][1])).To(BeTrue())
		Expect(sma.Vals[0][2]).To(BeNumerically("~", 2.0, 1e-9))
		Expect(sma.Vals[0][3]).To(BeNumerically("~", 3.0, 1e-9))
		Expect(sma.Vals[0][4]).To(BeNumerically("~", 4.0, 1e-9))
	})

	It("returns all NaN for an invalid lookback", func() {
		sma := df.SMA(10)
		for _, v := range sma.Vals[0] {
			Expect(math.IsNaN(v)).To(BeTrue())
		}
	})

	It("adds a scalar without mutating the source", func() {
		shifted := df.AddScalar(1)
		Expect(shifted.Vals[0][4]).To(Equal(6.0))
		Expect(df.Vals[0][4]).To(Equal(5.0))
	})

	It("divides columns by name", func() {
		ratio := df.Div(df.AddScalar(1))
		Expect(ratio.Vals[0][0]).To(BeNumerically("~", 0.5, 1e-9))
		Expect(ratio.Vals[0][4]).To(BeNumerically("~", 5.0/6.0, 1e-9))
		Expect(df.Vals[0][0]).To(Equal(1.0))
	})

	It("marks columns missing from the divisor as NaN", func() {
		other := df.Copy()
		other.ColNames = []string{"000001.XSHE"}
		ratio := df.Div(other)
		for _, v := range ratio.Vals[0] {
			Expect(math.IsNaN(v)).To(BeTrue())
		}
	})
})
