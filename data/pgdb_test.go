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

package data_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
)

var _ = Describe("PgDB", func() {
	var (
		tz     *time.Location
		mock   pgxmock.PgxConnIface
		pgdb   *data.PgDB
		ctx    context.Context
		pingAn market.Security
	)

	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, tz)
	}

	BeforeEach(func() {
		tz = common.GetTimezone()
		ctx = context.Background()
		pingAn = market.MustParseSecurity("601318.XSHG")

		var err error
		mock, err = pgxmock.NewConn()
		Expect(err).NotTo(HaveOccurred())
		pgdb = data.NewPgDB(mock)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("loads bars from the eod table", func() {
		rows := pgxmock.NewRows([]string{"event_date", "open", "high", "low", "close", "volume", "high_limit", "low_limit", "paused"}).
			AddRow(date(2024, time.June, 17), 40.0, 41.0, 39.5, 40.5, 1e6, 44.0, 36.0, false).
			AddRow(date(2024, time.June, 18), 40.5, 42.0, 40.0, 41.8, 2e6, 44.55, 36.45, false)
		mock.ExpectQuery("SELECT event_date, open, high, low, close").
			WithArgs("601318.XSHG", date(2024, time.June, 17), date(2024, time.June, 18)).
			WillReturnRows(rows)

		bars, err := pgdb.GetBars(ctx, pingAn, date(2024, time.June, 17), date(2024, time.June, 18))
		Expect(err).NotTo(HaveOccurred())
		Expect(bars).To(HaveLen(2))
		Expect(bars[0].Date).To(Equal(date(2024, time.June, 17)))
		Expect(bars[1].Close).To(Equal(41.8))
		Expect(bars[1].HighLimit).To(Equal(44.55))
	})

	It("loads trade days", func() {
		rows := pgxmock.NewRows([]string{"trade_date"}).
			AddRow(date(2024, time.June, 17)).
			AddRow(date(2024, time.June, 18))
		mock.ExpectQuery("SELECT trade_date FROM trading_days").
			WithArgs(date(2024, time.June, 1), date(2024, time.June, 30)).
			WillReturnRows(rows)

		days, err := pgdb.GetTradeDays(ctx, date(2024, time.June, 1), date(2024, time.June, 30))
		Expect(err).NotTo(HaveOccurred())
		Expect(days).To(Equal([]time.Time{date(2024, time.June, 17), date(2024, time.June, 18)}))
	})

	It("loads corporate actions by ex date", func() {
		rows := pgxmock.NewRows([]string{"ticker", "per_base", "bonus_pre_tax", "scale_factor"}).
			AddRow("601318.XSHG", 10, 12.0, 1.0)
		mock.ExpectQuery("SELECT ticker, per_base, bonus_pre_tax, scale_factor FROM corporate_actions").
			WithArgs(date(2024, time.June, 18)).
			WillReturnRows(rows)

		actions, err := pgdb.GetSplitDividend(ctx, date(2024, time.June, 18))
		Expect(err).NotTo(HaveOccurred())
		Expect(actions).To(HaveLen(1))
		Expect(actions[0].Security).To(Equal(pingAn))
		Expect(actions[0].BonusPreTax).To(Equal(12.0))
	})

	It("loads index constituents", func() {
		rows := pgxmock.NewRows([]string{"member"}).
			AddRow("601318.XSHG").
			AddRow("600000.XSHG")
		mock.ExpectQuery("SELECT member FROM index_members").
			WithArgs("000300.XSHG", date(2024, time.June, 18)).
			WillReturnRows(rows)

		members, err := pgdb.GetIndexStocks(ctx, market.MustParseSecurity("000300.XSHG"), date(2024, time.June, 18))
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(HaveLen(2))
		Expect(members[0]).To(Equal(pingAn))
	})

	It("does not serve live quotes", func() {
		_, err := pgdb.GetLiveCurrent(ctx, []market.Security{pingAn})
		Expect(err).To(MatchError(data.ErrNotSupported))
	})
})
