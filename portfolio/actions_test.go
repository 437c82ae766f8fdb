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

package portfolio_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

var _ = Describe("ActionEngine", func() {
	var (
		engine *portfolio.ActionEngine
		port   *portfolio.Portfolio
		tz     *time.Location
		exDate time.Time

		neverHalted  func(market.Security) bool
		alwaysHalted func(market.Security) bool
	)

	buyAndSettle := func(sid string, amount int64, price float64) market.Security {
		sec := market.MustParseSecurity(sid)
		at := exDate.AddDate(0, 0, -7)
		order := portfolio.NewOrder(sec, portfolio.Buy, portfolio.LimitStyle(price), amount, at)
		_, err := port.ApplyBuy(order, at, amount, price, 5, 0)
		Expect(err).To(BeNil())
		port.UpdateCloseable()
		return sec
	}

	BeforeEach(func() {
		engine = portfolio.NewActionEngine()
		port = portfolio.NewPortfolio(1_000_000)
		tz = common.GetTimezone()
		exDate = time.Date(2024, 6, 12, 0, 0, 0, 0, tz)

		neverHalted = func(market.Security) bool { return false }
		alwaysHalted = func(market.Security) bool { return true }
	})

	Context("stock dividends", func() {
		It("pays cash net of the 20% withholding", func() {
			sec := buyAndSettle("601318.XSHG", 1200, 40)
			cashBefore := port.Cash

			engine.Apply(exDate, port, []*data.CorporateAction{{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				BonusPreTax: 15,
				ScaleFactor: 1,
			}}, neverHalted)

			// 1200/10*15 = 1800 gross, 1440 after tax
			Expect(port.Cash).To(BeNumerically("~", cashBefore+1440.00, 1e-9))
			Expect(port.Position(sec).TotalAmount).To(Equal(int64(1200)))
		})
	})

	Context("fund dividends", func() {
		It("pays cash untaxed on a per-share base", func() {
			sec := buyAndSettle("511880.XSHG", 400, 100)
			cashBefore := port.Cash

			engine.Apply(exDate, port, []*data.CorporateAction{{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     1,
				BonusPreTax: 1.5521,
				ScaleFactor: 1,
			}}, neverHalted)

			Expect(port.Cash).To(BeNumerically("~", cashBefore+620.84, 1e-9))
		})
	})

	Context("splits", func() {
		It("scales shares up and the cost basis down", func() {
			sec := buyAndSettle("601318.XSHG", 1000, 40)
			costBefore := port.Position(sec).AvgCost
			valueBefore := port.TotalValue()

			engine.Apply(exDate, port, []*data.CorporateAction{{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				ScaleFactor: 1.25,
			}}, neverHalted)

			pos := port.Position(sec)
			Expect(pos.TotalAmount).To(Equal(int64(1250)))
			Expect(pos.CloseableAmount).To(Equal(int64(1250)))
			Expect(pos.AvgCost).To(BeNumerically("~", costBefore/1.25, 1e-9))
			Expect(port.TotalValue()).To(BeNumerically("~", valueBefore, 1e-6))
		})

		It("computes the dividend on the pre-split share count", func() {
			sec := buyAndSettle("601318.XSHG", 1000, 40)
			cashBefore := port.Cash

			engine.Apply(exDate, port, []*data.CorporateAction{{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				BonusPreTax: 10,
				ScaleFactor: 2,
			}}, neverHalted)

			// dividend owed on 1000 shares, not 2000
			Expect(port.Cash).To(BeNumerically("~", cashBefore+1000/10.0*10*0.8, 1e-9))
			Expect(port.Position(sec).TotalAmount).To(Equal(int64(2000)))
		})
	})

	Context("halt deferral", func() {
		It("defers an event on a halted ex date and applies it when trading resumes", func() {
			sec := buyAndSettle("601318.XSHG", 1200, 40)
			cashBefore := port.Cash

			action := &data.CorporateAction{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				BonusPreTax: 15,
				ScaleFactor: 1,
			}

			engine.Apply(exDate, port, []*data.CorporateAction{action}, alwaysHalted)
			Expect(port.Cash).To(BeNumerically("~", cashBefore, 1e-9))
			Expect(engine.Pending()).To(HaveLen(1))

			nextDay := exDate.AddDate(0, 0, 1)
			engine.Apply(nextDay, port, nil, neverHalted)
			Expect(port.Cash).To(BeNumerically("~", cashBefore+1440.00, 1e-9))
			Expect(engine.Pending()).To(BeEmpty())
		})

		It("drops a deferred event once the position is closed", func() {
			sec := buyAndSettle("601318.XSHG", 1200, 40)

			action := &data.CorporateAction{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				BonusPreTax: 15,
				ScaleFactor: 1,
			}
			engine.Apply(exDate, port, []*data.CorporateAction{action}, alwaysHalted)
			Expect(engine.Pending()).To(HaveLen(1))

			sell := portfolio.NewOrder(sec, portfolio.Sell, portfolio.LimitStyle(41), 1200, exDate)
			_, err := port.ApplySell(sell, exDate, 1200, 41, 5, 4.92)
			Expect(err).To(BeNil())
			cashBefore := port.Cash

			nextDay := exDate.AddDate(0, 0, 1)
			engine.Apply(nextDay, port, nil, neverHalted)
			Expect(port.Cash).To(BeNumerically("~", cashBefore, 1e-9))
			Expect(engine.Pending()).To(BeEmpty())
		})
	})

	Context("no position", func() {
		It("ignores an action for a security not held", func() {
			sec := market.MustParseSecurity("601318.XSHG")
			cashBefore := port.Cash

			engine.Apply(exDate, port, []*data.CorporateAction{{
				Security:    sec,
				ExDate:      exDate,
				PerBase:     10,
				BonusPreTax: 15,
				ScaleFactor: 1,
			}}, neverHalted)

			Expect(port.Cash).To(BeNumerically("~", cashBefore, 1e-9))
			Expect(engine.Pending()).To(BeEmpty())
		})
	})
})
