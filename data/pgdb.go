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

package data

import (
	"context"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/database"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
)

// Querier is the subset of pgx used by the postgres provider; *pgxpool.Pool
// and pgxmock both satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PgDB serves market data from the local postgres mirror
type PgDB struct {
	conn Querier
	tz   *time.Location
}

func NewPgDB(conn Querier) *PgDB {
	return &PgDB{
		conn: conn,
		tz:   common.GetTimezone(),
	}
}

// NewPgDBFromPool builds a provider on the shared database pool
func NewPgDBFromPool() (*PgDB, error) {
	pool, err := database.Pool()
	if err != nil {
		return nil, err
	}
	return NewPgDB(pool), nil
}

func (p *PgDB) Name() string { return "pgdb" }

func (p *PgDB) GetBars(ctx context.Context, security market.Security, begin, end time.Time) ([]*Bar, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT event_date, open, high, low, close, volume, high_limit, low_limit, paused
		 FROM eod WHERE ticker = $1 AND event_date BETWEEN $2 AND $3
		 ORDER BY event_date`,
		security.String(), begin, end)
	if err != nil {
		log.Error().Err(err).Str("Ticker", security.String()).Msg("eod query failed")
		return nil, err
	}
	defer rows.Close()

	var bars []*Bar
	for rows.Next() {
		bar := &Bar{}
		var eventDate time.Time
		if err := rows.Scan(&eventDate, &bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.Volume, &bar.HighLimit, &bar.LowLimit, &bar.Paused); err != nil {
			return nil, err
		}
		bar.Date = market.Midnight(eventDate.In(p.tz))
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

func (p *PgDB) GetPrice(ctx context.Context, securities []market.Security, begin, end time.Time, metric string) (*dataframe.DataFrame, error) {
	dfMap := dataframe.DataFrameMap{}
	for _, sec := range securities {
		bars, err := p.GetBars(ctx, sec, begin, end)
		if err != nil {
			return nil, err
		}

		dates := make([]time.Time, 0, len(bars))
		vals := make([]float64, 0, len(bars))
		for _, bar := range bars {
			v, err := barMetric(bar, metric)
			if err != nil {
				return nil, err
			}
			dates = append(dates, bar.Date)
			vals = append(vals, v)
		}

		dfMap[sec.String()] = &dataframe.DataFrame{
			Dates:    dates,
			ColNames: []string{sec.String()},
			Vals:     [][]float64{vals},
		}
	}

	return dfMap.DataFrame(), nil
}

func (p *PgDB) GetAdjFactors(ctx context.Context, security market.Security, begin, end time.Time) ([]AdjFactor, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT event_date, adj_factor FROM adj_factors
		 WHERE ticker = $1 AND event_date BETWEEN $2 AND $3
		 ORDER BY event_date`,
		security.String(), begin, end)
	if err != nil {
		log.Error().Err(err).Str("Ticker", security.String()).Msg("adj_factors query failed")
		return nil, err
	}
	defer rows.Close()

	var factors []AdjFactor
	for rows.Next() {
		var f AdjFactor
		var eventDate time.Time
		if err := rows.Scan(&eventDate, &f.Factor); err != nil {
			return nil, err
		}
		f.Date = market.Midnight(eventDate.In(p.tz))
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (p *PgDB) GetTradeDays(ctx context.Context, begin, end time.Time) ([]time.Time, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT trade_date FROM trading_days WHERE trade_date BETWEEN $1 AND $2 ORDER BY trade_date`,
		begin, end)
	if err != nil {
		log.Error().Err(err).Msg("trading_days query failed")
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, market.Midnight(d.In(p.tz)))
	}
	return days, rows.Err()
}

func (p *PgDB) GetAllSecurities(ctx context.Context, on time.Time) ([]*SecurityInfo, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT ticker, name, list_date, delist_date FROM securities
		 WHERE list_date <= $1 AND (delist_date IS NULL OR delist_date > $1)
		 ORDER BY ticker`,
		on)
	if err != nil {
		log.Error().Err(err).Msg("securities query failed")
		return nil, err
	}
	defer rows.Close()

	var infos []*SecurityInfo
	for rows.Next() {
		var (
			ticker     string
			name       string
			listDate   time.Time
			delistDate pgtype.Date
		)
		if err := rows.Scan(&ticker, &name, &listDate, &delistDate); err != nil {
			return nil, err
		}

		sec, err := market.ParseSecurity(ticker)
		if err != nil {
			log.Warn().Str("Ticker", ticker).Msg("skipping unparseable ticker")
			continue
		}

		info := &SecurityInfo{
			Security: sec,
			Name:     name,
			ListDate: market.Midnight(listDate.In(p.tz)),
		}
		if delistDate.Status == pgtype.Present {
			info.DelistDate = market.Midnight(delistDate.Time.In(p.tz))
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (p *PgDB) GetIndexStocks(ctx context.Context, index market.Security, on time.Time) ([]market.Security, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT member FROM index_members
		 WHERE index_ticker = $1 AND event_date = (
			SELECT max(event_date) FROM index_members WHERE index_ticker = $1 AND event_date <= $2)
		 ORDER BY member`,
		index.String(), on)
	if err != nil {
		log.Error().Err(err).Str("Index", index.String()).Msg("index_members query failed")
		return nil, err
	}
	defer rows.Close()

	var members []market.Security
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		sec, err := market.ParseSecurity(ticker)
		if err != nil {
			log.Warn().Str("Ticker", ticker).Msg("skipping unparseable index member")
			continue
		}
		members = append(members, sec)
	}
	return members, rows.Err()
}

func (p *PgDB) GetSplitDividend(ctx context.Context, on time.Time) ([]*CorporateAction, error) {
	rows, err := p.conn.Query(ctx,
		`SELECT ticker, per_base, bonus_pre_tax, scale_factor FROM corporate_actions WHERE ex_date = $1 ORDER BY ticker`,
		market.Midnight(on))
	if err != nil {
		log.Error().Err(err).Msg("corporate_actions query failed")
		return nil, err
	}
	defer rows.Close()

	var actions []*CorporateAction
	for rows.Next() {
		var ticker string
		action := &CorporateAction{ExDate: market.Midnight(on)}
		if err := rows.Scan(&ticker, &action.PerBase, &action.BonusPreTax, &action.ScaleFactor); err != nil {
			return nil, err
		}
		sec, err := market.ParseSecurity(ticker)
		if err != nil {
			log.Warn().Str("Ticker", ticker).Msg("skipping unparseable corporate action")
			continue
		}
		action.Security = sec
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// GetLiveCurrent is not available from the historical mirror
func (p *PgDB) GetLiveCurrent(_ context.Context, _ []market.Security) ([]*Quote, error) {
	return nil, ErrNotSupported
}
