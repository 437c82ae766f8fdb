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

package indicators_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/indicators"
)

var _ = Describe("Momentum", func() {
	var df *dataframe.DataFrame

	BeforeEach(func() {
		dates := make([]time.Time, 5)
		for ii := range dates {
			dates[ii] = time.Date(2024, 6, 3+ii, 0, 0, 0, 0, time.UTC)
		}
		df = &dataframe.DataFrame{
			Dates:    dates,
			ColNames: []string{"600000.XSHG", "000001.XSHE"},
			Vals: [][]float64{
				{10, 10.5, 11, 11.5, 12},
				{20, 19, 18, 17, 16},
			},
		}
	})

	When("computing a 2 day momentum", func() {
		It("fills the warm-up period with NaN", func() {
			mom := indicators.Momentum(df, 2)
			Expect(math.IsNaN(mom.Vals[0][0])).To(BeTrue())
			Expect(math.IsNaN(mom.Vals[0][1])).To(BeTrue())
		})

		It("computes fractional change per column", func() {
			mom := indicators.Momentum(df, 2)
			Expect(mom.Vals[0][2]).To(BeNumerically("~", 0.1, 1e-9))
			Expect(mom.Vals[1][4]).To(BeNumerically("~", 16.0/18.0-1, 1e-9))
		})

		It("leaves the input untouched", func() {
			indicators.Momentum(df, 2)
			Expect(df.Vals[0][0]).To(Equal(10.0))
		})
	})

	When("extracting the latest scores", func() {
		It("returns one score per column", func() {
			scores := indicators.LatestScores(df, 4)
			Expect(scores).To(HaveLen(2))
			Expect(scores["600000.XSHG"]).To(BeNumerically("~", 0.2, 1e-9))
			Expect(scores["000001.XSHE"]).To(BeNumerically("~", -0.2, 1e-9))
		})

		It("omits columns without enough history", func() {
			scores := indicators.LatestScores(df, 10)
			Expect(scores).To(BeEmpty())
		})
	})
})
