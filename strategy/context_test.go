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

package strategy_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/scheduler"
	"github.com/lotus-quant/lq-engine/strategy"
	"github.com/lotus-quant/lq-engine/tradecron"
)

type placedOrder struct {
	Security market.Security
	Side     portfolio.Side
	Style    portfolio.Style
	Amount   int64
}

// fakeRuntime records orders and serves a fixed reference price
type fakeRuntime struct {
	now        time.Time
	port       *portfolio.Portfolio
	sched      *scheduler.Scheduler
	manager    *data.Manager
	refPrice   float64
	placed     []placedOrder
	subscribed []market.Security
	messages   []string
	benchmark  market.Security
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		now:      time.Date(2024, 6, 12, 9, 31, 0, 0, common.GetTimezone()),
		port:     portfolio.NewPortfolio(1_000_000),
		sched:    scheduler.New(market.DefaultPeriods, tradecron.Daily),
		refPrice: 10.0,
	}
}

func (f *fakeRuntime) CurrentDt() time.Time            { return f.now }
func (f *fakeRuntime) Portfolio() *portfolio.Portfolio { return f.port }
func (f *fakeRuntime) Scheduler() *scheduler.Scheduler { return f.sched }
func (f *fakeRuntime) Data() *data.Manager             { return f.manager }
func (f *fakeRuntime) CurrentData() strategy.Data      { return nil }
func (f *fakeRuntime) SetBenchmark(s market.Security)  { f.benchmark = s }
func (f *fakeRuntime) SetOrderCost(broker.OrderCost)   {}
func (f *fakeRuntime) SetSlippage(broker.Slippage)     {}

func (f *fakeRuntime) PlaceOrder(_ context.Context, security market.Security, side portfolio.Side, style portfolio.Style, amount int64) (string, error) {
	f.placed = append(f.placed, placedOrder{Security: security, Side: side, Style: style, Amount: amount})
	return "order-1", nil
}

func (f *fakeRuntime) ReferencePrice(market.Security) (float64, error) {
	return f.refPrice, nil
}

func (f *fakeRuntime) Subscribe(_ context.Context, securities []market.Security) error {
	f.subscribed = append(f.subscribed, securities...)
	return nil
}

func (f *fakeRuntime) Unsubscribe(context.Context, []market.Security) error { return nil }

func (f *fakeRuntime) SendMsg(_ context.Context, msg string) error {
	f.messages = append(f.messages, msg)
	return nil
}

var _ = Describe("Context", func() {
	var (
		rt   *fakeRuntime
		sc   *strategy.Context
		bank market.Security
		star market.Security
	)

	BeforeEach(func() {
		rt = newFakeRuntime()
		sc = strategy.NewContext(rt)
		bank = market.MustParseSecurity("600000.XSHG")
		star = market.MustParseSecurity("688001.XSHG")
	})

	Context("Order", func() {
		It("rounds a buy down to the lot grid", func() {
			id, err := sc.Order(context.Background(), bank, 250)
			Expect(err).To(BeNil())
			Expect(id).To(Equal("order-1"))
			Expect(rt.placed).To(HaveLen(1))
			Expect(rt.placed[0].Side).To(Equal(portfolio.Buy))
			Expect(rt.placed[0].Amount).To(Equal(int64(200)))
		})

		It("uses the STAR lot rule for 688 codes", func() {
			_, err := sc.Order(context.Background(), star, 233)
			Expect(err).To(BeNil())
			Expect(rt.placed[0].Amount).To(Equal(int64(233)))
		})

		It("rejects a buy below the minimum lot", func() {
			_, err := sc.Order(context.Background(), bank, 50)
			Expect(err).To(MatchError(strategy.ErrAmountRoundsToZero))
			Expect(rt.placed).To(BeEmpty())
		})

		It("caps a sell at the closeable balance", func() {
			at := rt.now
			buy := portfolio.NewOrder(bank, portfolio.Buy, portfolio.LimitStyle(10), 300, at)
			_, err := rt.port.ApplyBuy(buy, at, 300, 10, 5, 0)
			Expect(err).To(BeNil())
			rt.port.UpdateCloseable()

			_, err = sc.Order(context.Background(), bank, -500)
			Expect(err).To(BeNil())
			Expect(rt.placed[0].Side).To(Equal(portfolio.Sell))
			Expect(rt.placed[0].Amount).To(Equal(int64(300)))
		})
	})

	Context("OrderValue", func() {
		It("converts cash to shares at the reference price", func() {
			_, err := sc.OrderValue(context.Background(), bank, 2_520)
			Expect(err).To(BeNil())
			// 2520 / 10 = 252 shares, floored to 200 by the lot rule
			Expect(rt.placed[0].Amount).To(Equal(int64(200)))
		})
	})

	Context("OrderTarget", func() {
		BeforeEach(func() {
			at := rt.now
			buy := portfolio.NewOrder(bank, portfolio.Buy, portfolio.LimitStyle(10), 300, at)
			_, err := rt.port.ApplyBuy(buy, at, 300, 10, 5, 0)
			Expect(err).To(BeNil())
			rt.port.UpdateCloseable()
		})

		It("buys the delta up to the target", func() {
			_, err := sc.OrderTarget(context.Background(), bank, 500)
			Expect(err).To(BeNil())
			Expect(rt.placed[0].Side).To(Equal(portfolio.Buy))
			Expect(rt.placed[0].Amount).To(Equal(int64(200)))
		})

		It("sells the delta down to the target", func() {
			_, err := sc.OrderTarget(context.Background(), bank, 100)
			Expect(err).To(BeNil())
			Expect(rt.placed[0].Side).To(Equal(portfolio.Sell))
			Expect(rt.placed[0].Amount).To(Equal(int64(200)))
		})

		It("does nothing at the target", func() {
			id, err := sc.OrderTarget(context.Background(), bank, 300)
			Expect(err).To(BeNil())
			Expect(id).To(BeEmpty())
			Expect(rt.placed).To(BeEmpty())
		})

		It("targets by value", func() {
			_, err := sc.OrderTargetValue(context.Background(), bank, 5_000)
			Expect(err).To(BeNil())
			Expect(rt.placed[0].Side).To(Equal(portfolio.Buy))
			Expect(rt.placed[0].Amount).To(Equal(int64(200)))
		})
	})

	Context("GetPrice", func() {
		var day1, day2 time.Time

		BeforeEach(func() {
			tz := common.GetTimezone()
			day1 = time.Date(2024, 6, 11, 0, 0, 0, 0, tz)
			day2 = time.Date(2024, 6, 12, 0, 0, 0, 0, tz)

			provider := data.NewMemoryProvider()
			provider.AddBars(bank,
				&data.Bar{Date: day1, Close: 5.0, Volume: 1e6},
				&data.Bar{Date: day2, Close: 10.4, Volume: 1e6},
			)
			provider.AddAdjFactors(bank,
				data.AdjFactor{Date: day1, Factor: 1.0},
				data.AdjFactor{Date: day2, Factor: 2.0},
			)
			rt.manager = data.NewManager(provider)
		})

		It("serves real traded prices by default", func() {
			df, err := sc.GetPrice(context.Background(), []market.Security{bank}, day1, day2, data.MetricClose)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{5.0, 10.4}))
		})

		It("pre-adjusts prices when use_real_price is off", func() {
			sc.SetOption("use_real_price", false)
			df, err := sc.GetPrice(context.Background(), []market.Security{bank}, day1, day2, data.MetricClose)
			Expect(err).To(BeNil())
			Expect(df.Vals[0]).To(Equal([]float64{2.5, 10.4}))
		})
	})

	Context("scheduling", func() {
		It("registers daily tasks through the scheduler", func() {
			cb := func(context.Context, time.Time) error { return nil }
			id, err := sc.RunDaily(cb, "open")
			Expect(err).To(BeNil())
			Expect(id).ToNot(BeEmpty())
			Expect(rt.sched.Tasks()).To(HaveLen(1))

			Expect(sc.Unschedule(id)).To(Succeed())
			Expect(rt.sched.Tasks()).To(BeEmpty())
		})

		It("surfaces bad time expressions", func() {
			cb := func(context.Context, time.Time) error { return nil }
			_, err := sc.RunDaily(cb, "lunchtime")
			Expect(err).To(MatchError(tradecron.ErrInvalidTimeExpression))
		})
	})

	Context("subscriptions", func() {
		It("refuses index symbols", func() {
			idx := market.MustParseSecurity("000300.XSHG")
			err := sc.Subscribe(context.Background(), []market.Security{idx})
			Expect(err).To(MatchError(strategy.ErrForbiddenSubscription))
			Expect(rt.subscribed).To(BeEmpty())
		})

		It("passes plain stocks through", func() {
			Expect(sc.Subscribe(context.Background(), []market.Security{bank})).To(Succeed())
			Expect(rt.subscribed).To(HaveLen(1))
		})
	})

	It("forwards messages and options", func() {
		Expect(sc.SendMsg(context.Background(), "position opened")).To(Succeed())
		Expect(rt.messages).To(ConsistOf("position opened"))

		sc.SetOption("trade_max_wait_time", 30)
		Expect(sc.Options.TradeMaxWaitTime).To(Equal(30))
		sc.SetOption("no_such_option", 1) // ignored
	})
})
