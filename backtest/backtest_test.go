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

package backtest_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/backtest"
	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/strategy"
	"github.com/lotus-quant/lq-engine/tradecron"
)

// buyAndHold buys once at the first open and holds
type buyAndHold struct {
	strategy.Base
	security market.Security
	amount   int64
	bought   bool
	orderErr error
}

func (s *buyAndHold) Initialize(_ context.Context, sc *strategy.Context) error {
	sc.SetSlippage(broker.Slippage{})
	return nil
}

func (s *buyAndHold) HandleData(ctx context.Context, sc *strategy.Context, _ strategy.Data) error {
	if s.bought {
		return nil
	}
	_, err := sc.Order(ctx, s.security, s.amount)
	s.orderErr = err
	s.bought = true
	return nil
}

var _ = Describe("Driver", func() {
	var (
		tz       *time.Location
		provider *data.MemoryProvider
		manager  *data.Manager
		sec      market.Security
		days     []time.Time
	)

	flatBars := func(security market.Security, price float64, on []time.Time) {
		for _, day := range on {
			provider.AddBars(security, &data.Bar{
				Date: day, Open: price, High: price, Low: price, Close: price,
				Volume: 1_000_000, HighLimit: price * 1.1, LowLimit: price * 0.9,
			})
		}
	}

	BeforeEach(func() {
		tz = common.GetTimezone()
		provider = data.NewMemoryProvider()
		manager = data.NewManager(provider)
		sec = market.MustParseSecurity("600000.XSHG")

		// ten consecutive weekdays
		days = nil
		for d := time.Date(2024, 6, 3, 0, 0, 0, 0, tz); len(days) < 10; d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
				days = append(days, d)
			}
		}
		provider.SetTradeDays(days)
		flatBars(sec, 100, days)
	})

	newDriver := func(strat strategy.Strategy, capital float64) *backtest.Driver {
		d, err := backtest.New(backtest.Config{
			StartDate:   days[0],
			EndDate:     days[len(days)-1],
			CapitalBase: capital,
			Frequency:   tradecron.Daily,
		}, manager, strat)
		Expect(err).To(BeNil())
		return d
	}

	Context("end to end buy and hold", func() {
		It("finishes at capital minus fees when the price never moves", func() {
			strat := &buyAndHold{security: sec, amount: 100}
			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(strat.orderErr).To(BeNil())

			Expect(result.Records).To(HaveLen(10))
			final := result.Records[len(result.Records)-1]
			Expect(final.TotalValue).To(BeNumerically("~", 100_000-5, 1e-6))

			Expect(result.Trades).To(HaveLen(1))
			trade := result.Trades[0]
			Expect(trade.Price).To(BeNumerically("~", 100, 1e-9))
			Expect(trade.Commission).To(BeNumerically("~", 5, 1e-9))

			// every snapshot satisfies the value identity
			for _, rec := range result.Records {
				Expect(rec.TotalValue).To(BeNumerically("~", rec.Cash+rec.PositionsValue, 1e-6))
			}
		})

		It("rejects a window with no trade days", func() {
			weekend := time.Date(2024, 6, 1, 0, 0, 0, 0, tz)
			d, err := backtest.New(backtest.Config{
				StartDate:   weekend,
				EndDate:     weekend.AddDate(0, 0, 1),
				CapitalBase: 100_000,
				Frequency:   tradecron.Daily,
			}, manager, &buyAndHold{security: sec, amount: 100})
			Expect(err).To(BeNil())

			_, err = d.Run(context.Background())
			Expect(err).To(MatchError(backtest.ErrNoTradeDays))
		})
	})

	Context("halted securities", func() {
		It("drops orders on a zero-volume day with a warning, not an error", func() {
			halted := market.MustParseSecurity("000001.XSHE")
			for _, day := range days {
				provider.AddBars(halted, &data.Bar{
					Date: day, Open: 10, High: 10, Low: 10, Close: 10, Volume: 0,
				})
			}

			strat := &buyAndHold{security: halted, amount: 100}
			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(strat.orderErr).To(BeNil())
			Expect(result.Trades).To(BeEmpty())
		})
	})

	Context("T+1", func() {
		It("refuses to sell shares bought the same day", func() {
			var sameDayErr, nextDayErr error
			strat := &scriptedStrategy{script: func(ctx context.Context, sc *strategy.Context, day int) {
				switch day {
				case 1:
					_, err := sc.Order(ctx, sec, 100)
					Expect(err).To(BeNil())
					_, sameDayErr = sc.Order(ctx, sec, -100)
				case 2:
					_, nextDayErr = sc.Order(ctx, sec, -100)
				}
			}}

			_, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(sameDayErr).To(MatchError(strategy.ErrAmountRoundsToZero))
			Expect(nextDayErr).To(BeNil())
		})
	})

	Context("volume ratio", func() {
		thin := func(volume float64) market.Security {
			illiquid := market.MustParseSecurity("603999.XSHG")
			for _, day := range days {
				provider.AddBars(illiquid, &data.Bar{
					Date: day, Open: 10, High: 10, Low: 10, Close: 10,
					Volume: volume, HighLimit: 11, LowLimit: 9,
				})
			}
			return illiquid
		}

		It("caps a buy at the configured share of the day's volume", func() {
			illiquid := thin(1000)
			// default ratio 0.25 allows 250 shares, floored to the 100 lot
			strat := &buyAndHold{security: illiquid, amount: 1000}
			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(strat.orderErr).To(BeNil())

			Expect(result.Trades).To(HaveLen(1))
			Expect(result.Trades[0].Amount).To(Equal(int64(200)))

			Expect(result.Orders).To(HaveLen(1))
			Expect(result.Orders[0].Status).To(Equal(portfolio.StatusCancelled))
			Expect(result.Orders[0].FilledAmount).To(Equal(int64(200)))
		})

		It("rejects a buy the day's volume cannot absorb", func() {
			illiquid := thin(200)
			// ratio 0.25 of 200 shares is below the minimum lot
			strat := &buyAndHold{security: illiquid, amount: 1000}
			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(strat.orderErr).To(MatchError(backtest.ErrThinVolume))
			Expect(result.Trades).To(BeEmpty())
		})

		It("caps a sell like a short closeable balance", func() {
			illiquid := thin(1000)
			var sellErr error
			strat := &scriptedStrategy{script: func(ctx context.Context, sc *strategy.Context, day int) {
				switch day {
				case 1:
					sc.SetOption("order_volume_ratio", 0)
					_, err := sc.Order(ctx, illiquid, 1000)
					Expect(err).To(BeNil())
				case 2:
					sc.SetOption("order_volume_ratio", 0.25)
					_, sellErr = sc.Order(ctx, illiquid, -1000)
				}
			}}

			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(sellErr).To(BeNil())

			Expect(result.Trades).To(HaveLen(2))
			sell := result.Trades[1]
			Expect(sell.Amount).To(Equal(int64(250)))
		})

		It("fills in full with the cap disabled", func() {
			illiquid := thin(1000)
			strat := &scriptedStrategy{script: func(ctx context.Context, sc *strategy.Context, day int) {
				if day == 1 {
					sc.SetOption("order_volume_ratio", 0)
					_, err := sc.Order(ctx, illiquid, 1000)
					Expect(err).To(BeNil())
				}
			}}

			result, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(result.Trades).To(HaveLen(1))
			Expect(result.Trades[0].Amount).To(Equal(int64(1000)))
		})
	})

	Context("virtual clock", func() {
		It("never moves backwards across post-close tasks", func() {
			var stamps []time.Time
			strat := &clockWatch{
				register: func(sc *strategy.Context) {
					_, err := sc.RunDaily(func(context.Context, time.Time) error {
						stamps = append(stamps, sc.CurrentDt())
						return nil
					}, "close+30m")
					Expect(err).To(BeNil())
				},
				afterEnd: func(sc *strategy.Context) {
					stamps = append(stamps, sc.CurrentDt())
				},
			}

			_, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(stamps).To(HaveLen(20))
			for i := 1; i < len(stamps); i++ {
				Expect(stamps[i].Before(stamps[i-1])).To(BeFalse(),
					"clock moved backwards at stamp %d", i)
			}
		})
	})

	Context("corporate actions", func() {
		It("pays a stock dividend on the ex date", func() {
			pafy := market.MustParseSecurity("601318.XSHG")
			flatBars(pafy, 100, days)
			provider.AddAction(&data.CorporateAction{
				Security:    pafy,
				ExDate:      days[2],
				PerBase:     10,
				BonusPreTax: 15,
				ScaleFactor: 1,
			})

			strat := &buyAndHold{security: pafy, amount: 1200}
			result, err := newDriver(strat, 200_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(strat.orderErr).To(BeNil())

			// 1200/10*15 gross, 20% withheld
			delta := result.Records[2].Cash - result.Records[1].Cash
			Expect(delta).To(BeNumerically("~", 1440.00, 1e-6))
		})
	})

	Context("scheduling", func() {
		It("fires a daily task once per trade day", func() {
			fired := 0
			strat := &schedulingStrategy{register: func(sc *strategy.Context) {
				_, err := sc.RunDaily(func(context.Context, time.Time) error {
					fired++
					return nil
				}, "open+30m")
				Expect(err).To(BeNil())
			}}

			_, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(fired).To(Equal(10))
		})
	})

	Context("portfolio access", func() {
		It("shows the position through the context", func() {
			var seen int64
			strat := &scriptedStrategy{script: func(ctx context.Context, sc *strategy.Context, day int) {
				if day == 1 {
					_, err := sc.Order(ctx, sec, 200)
					Expect(err).To(BeNil())
				}
				if day == 3 {
					if pos := sc.Portfolio().Position(sec); pos != nil {
						seen = pos.CloseableAmount
					}
				}
			}}

			_, err := newDriver(strat, 100_000).Run(context.Background())
			Expect(err).To(BeNil())
			Expect(seen).To(Equal(int64(200)))
		})
	})
})

// scriptedStrategy runs a day-indexed script from handle_data
type scriptedStrategy struct {
	strategy.Base
	day    int
	script func(ctx context.Context, sc *strategy.Context, day int)
}

func (s *scriptedStrategy) Initialize(_ context.Context, sc *strategy.Context) error {
	sc.SetSlippage(broker.Slippage{})
	return nil
}

func (s *scriptedStrategy) HandleData(ctx context.Context, sc *strategy.Context, _ strategy.Data) error {
	s.day++
	s.script(ctx, sc, s.day)
	return nil
}

// clockWatch samples the virtual clock from a scheduled task and from
// after_trading_end
type clockWatch struct {
	strategy.Base
	register func(sc *strategy.Context)
	afterEnd func(sc *strategy.Context)
}

func (s *clockWatch) Initialize(_ context.Context, sc *strategy.Context) error {
	s.register(sc)
	return nil
}

func (s *clockWatch) AfterTradingEnd(_ context.Context, sc *strategy.Context) error {
	s.afterEnd(sc)
	return nil
}

// schedulingStrategy registers scheduler tasks at initialize
type schedulingStrategy struct {
	strategy.Base
	register func(sc *strategy.Context)
}

func (s *schedulingStrategy) Initialize(_ context.Context, sc *strategy.Context) error {
	s.register(sc)
	return nil
}
