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
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
)

var _ = Describe("Portfolio", func() {
	var (
		port *portfolio.Portfolio
		pafy market.Security
		bank market.Security
		tz   *time.Location
		at   time.Time
	)

	BeforeEach(func() {
		port = portfolio.NewPortfolio(100_000)
		pafy = market.MustParseSecurity("601318.XSHG")
		bank = market.MustParseSecurity("600000.XSHG")
		tz = common.GetTimezone()
		at = time.Date(2024, 6, 12, 9, 31, 0, 0, tz)
	})

	Context("when buying", func() {
		It("debits cash by value plus fees", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())
			Expect(port.Cash).To(BeNumerically("~", 100_000-4000-5, 1e-9))
		})

		It("folds fees into the average cost", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())

			pos := port.Position(pafy)
			Expect(pos).ToNot(BeNil())
			Expect(pos.TotalAmount).To(Equal(int64(100)))
			Expect(pos.AvgCost).To(BeNumerically("~", 40.05, 1e-9))
		})

		It("averages a second lot into the cost basis", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())

			order = portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(44), 100, at)
			_, err = port.ApplyBuy(order, at, 100, 44, 5, 0)
			Expect(err).To(BeNil())

			pos := port.Position(pafy)
			Expect(pos.TotalAmount).To(Equal(int64(200)))
			Expect(pos.AvgCost).To(BeNumerically("~", (4005.0+4405.0)/200, 1e-9))
		})

		It("keeps newly bought shares un-closeable until the next day", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())

			pos := port.Position(pafy)
			Expect(pos.CloseableAmount).To(Equal(int64(0)))

			port.UpdateCloseable()
			Expect(pos.CloseableAmount).To(Equal(int64(100)))
		})

		It("rejects a buy exceeding available cash", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(2000), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 2000, 60, 0)
			Expect(err).To(MatchError(portfolio.ErrInsufficientCash))
			Expect(port.Cash).To(BeNumerically("~", 100_000, 1e-9))
			Expect(port.Position(pafy)).To(BeNil())
		})
	})

	Context("when selling", func() {
		BeforeEach(func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 200, at)
			_, err := port.ApplyBuy(order, at, 200, 40, 5, 0)
			Expect(err).To(BeNil())
			port.UpdateCloseable()
		})

		It("credits cash net of fees and leaves the cost basis alone", func() {
			costBefore := port.Position(pafy).AvgCost
			cashBefore := port.Cash

			order := portfolio.NewOrder(pafy, portfolio.Sell, portfolio.LimitStyle(42), 100, at)
			_, err := port.ApplySell(order, at, 100, 42, 5, 4.2)
			Expect(err).To(BeNil())

			Expect(port.Cash).To(BeNumerically("~", cashBefore+4200-5-4.2, 1e-9))
			pos := port.Position(pafy)
			Expect(pos.TotalAmount).To(Equal(int64(100)))
			Expect(pos.CloseableAmount).To(Equal(int64(100)))
			Expect(pos.AvgCost).To(BeNumerically("~", costBefore, 1e-9))
		})

		It("rejects selling more than the closeable amount", func() {
			buy := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(buy, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())

			// 300 held but only 200 closeable
			sell := portfolio.NewOrder(pafy, portfolio.Sell, portfolio.LimitStyle(42), 300, at)
			_, err = port.ApplySell(sell, at, 300, 42, 5, 0)
			Expect(err).To(MatchError(portfolio.ErrInsufficientCloseable))
		})

		It("removes a position sold to zero", func() {
			order := portfolio.NewOrder(pafy, portfolio.Sell, portfolio.LimitStyle(42), 200, at)
			_, err := port.ApplySell(order, at, 200, 42, 5, 4.2)
			Expect(err).To(BeNil())
			Expect(port.Position(pafy)).To(BeNil())
			Expect(port.PositionCount()).To(Equal(0))
		})

		It("rejects selling a security never held", func() {
			order := portfolio.NewOrder(bank, portfolio.Sell, portfolio.LimitStyle(10), 100, at)
			_, err := port.ApplySell(order, at, 100, 10, 5, 1)
			Expect(err).To(MatchError(portfolio.ErrInsufficientCloseable))
		})
	})

	Context("valuation", func() {
		It("holds total value equal to cash plus marked positions", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())

			port.MarkToMarket(map[market.Security]float64{pafy: 45})
			Expect(port.PositionsValue()).To(BeNumerically("~", 4500, 1e-9))
			Expect(port.TotalValue()).To(BeNumerically("~", port.Cash+4500, 1e-9))
			Expect(port.Returns()).To(BeNumerically("~", port.TotalValue()/100_000-1, 1e-12))
		})

		It("records a daily snapshot", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			_, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())
			port.MarkToMarket(map[market.Security]float64{pafy: 41})

			rec, err := port.RecordDay(at)
			Expect(err).To(BeNil())
			Expect(rec.Date).To(Equal(time.Date(2024, 6, 12, 0, 0, 0, 0, tz)))
			Expect(rec.TotalValue).To(BeNumerically("~", port.Cash+4100, 1e-9))
			Expect(port.Records()).To(HaveLen(1))
		})
	})

	Context("trades", func() {
		It("assigns each fill a stable source id", func() {
			order := portfolio.NewOrder(pafy, portfolio.Buy, portfolio.LimitStyle(40), 100, at)
			trade, err := port.ApplyBuy(order, at, 100, 40, 5, 0)
			Expect(err).To(BeNil())
			Expect(trade.SourceID).To(HaveLen(32))
			Expect(trade.OrderID).To(Equal(order.ID))
			Expect(trade.Value()).To(BeNumerically("~", 4000, 1e-9))
			Expect(port.Trades()).To(HaveLen(1))
		})
	})
})
