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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
)

const tushareDateFormat = "20060102"

// Tushare serves market data from the tushare pro HTTP API
type Tushare struct {
	token  string
	client *resty.Client
	tz     *time.Location
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string            `json:"fields"`
		Items  [][]json.RawMessage `json:"items"`
	} `json:"data"`
}

func NewTushare(token string) *Tushare {
	client := resty.New().
		SetBaseURL("https://api.tushare.pro").
		SetTimeout(30 * time.Second)
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return &Tushare{
		token:  token,
		client: client,
		tz:     common.GetTimezone(),
	}
}

// Client exposes the underlying resty client for test interception
func (t *Tushare) Client() *resty.Client { return t.client }

func (t *Tushare) Name() string { return "tushare" }

// tushareCode converts `600000.XSHG` to tushare's `600000.SH`
func tushareCode(sec market.Security) string {
	switch sec.Exchange {
	case market.Shanghai:
		return sec.Code + ".SH"
	case market.Shenzhen:
		return sec.Code + ".SZ"
	default:
		return sec.Code + ".BJ"
	}
}

// parseTushareCode converts `600000.SH` back to a Security
func parseTushareCode(code string) (market.Security, error) {
	parts := strings.Split(code, ".")
	if len(parts) != 2 {
		return market.Security{}, fmt.Errorf("%w: %q", market.ErrInvalidSecurity, code)
	}
	switch parts[1] {
	case "SH":
		return market.Security{Code: parts[0], Exchange: market.Shanghai}, nil
	case "SZ":
		return market.Security{Code: parts[0], Exchange: market.Shenzhen}, nil
	case "BJ":
		return market.Security{Code: parts[0], Exchange: market.Beijing}, nil
	}
	return market.Security{}, fmt.Errorf("%w: unknown exchange in %q", market.ErrInvalidSecurity, code)
}

// rowSet provides field-name access to a tushare result table
type rowSet struct {
	fieldIdx map[string]int
	items    [][]json.RawMessage
}

func (rs *rowSet) str(row int, field string) string {
	idx, ok := rs.fieldIdx[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(rs.items[row][idx], &s); err != nil {
		return ""
	}
	return s
}

func (rs *rowSet) float(row int, field string) float64 {
	idx, ok := rs.fieldIdx[field]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(rs.items[row][idx], &f); err != nil {
		// some endpoints quote numeric fields
		s := rs.str(row, field)
		f, _ = strconv.ParseFloat(s, 64)
	}
	return f
}

func (rs *rowSet) len() int { return len(rs.items) }

func (t *Tushare) call(ctx context.Context, apiName string, params map[string]string, fields string) (*rowSet, error) {
	subLog := log.With().Str("APIName", apiName).Logger()

	body := tushareRequest{
		APIName: apiName,
		Token:   t.token,
		Params:  params,
		Fields:  fields,
	}

	var result tushareResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/")
	if err != nil {
		subLog.Error().Err(err).Msg("tushare request failed")
		return nil, err
	}
	if resp.IsError() {
		subLog.Error().Int("StatusCode", resp.StatusCode()).Msg("tushare returned http error")
		return nil, fmt.Errorf("tushare http status %d", resp.StatusCode())
	}
	if result.Code != 0 {
		subLog.Error().Int("Code", result.Code).Str("Msg", result.Msg).Msg("tushare returned api error")
		return nil, fmt.Errorf("tushare api error %d: %s", result.Code, result.Msg)
	}

	fieldIdx := make(map[string]int, len(result.Data.Fields))
	for idx, f := range result.Data.Fields {
		fieldIdx[f] = idx
	}
	return &rowSet{fieldIdx: fieldIdx, items: result.Data.Items}, nil
}

func (t *Tushare) GetBars(ctx context.Context, security market.Security, begin, end time.Time) ([]*Bar, error) {
	params := map[string]string{
		"ts_code":    tushareCode(security),
		"start_date": begin.Format(tushareDateFormat),
		"end_date":   end.Format(tushareDateFormat),
	}

	// completed windows are immutable and worth caching across restarts;
	// today's bar is still being written
	key := fmt.Sprintf("bars:%s:%s:%s", params["ts_code"], params["start_date"], params["end_date"])
	cacheable := end.Before(market.Midnight(time.Now().In(t.tz)))
	if cacheable {
		if raw, err := common.CacheGet(key); err == nil {
			var bars []*Bar
			if err := json.Unmarshal(raw, &bars); err == nil {
				return bars, nil
			}
		}
	}

	daily, err := t.call(ctx, "daily", params, "trade_date,open,high,low,close,vol")
	if err != nil {
		return nil, err
	}

	limits, err := t.call(ctx, "stk_limit", params, "trade_date,up_limit,down_limit")
	if err != nil {
		return nil, err
	}
	limitByDate := make(map[string][2]float64, limits.len())
	for row := 0; row < limits.len(); row++ {
		limitByDate[limits.str(row, "trade_date")] = [2]float64{
			limits.float(row, "up_limit"),
			limits.float(row, "down_limit"),
		}
	}

	bars := make([]*Bar, 0, daily.len())
	// tushare returns newest first
	for row := daily.len() - 1; row >= 0; row-- {
		tradeDate := daily.str(row, "trade_date")
		dt, err := time.ParseInLocation(tushareDateFormat, tradeDate, t.tz)
		if err != nil {
			return nil, err
		}

		bar := &Bar{
			Date:   dt,
			Open:   daily.float(row, "open"),
			High:   daily.float(row, "high"),
			Low:    daily.float(row, "low"),
			Close:  daily.float(row, "close"),
			Volume: daily.float(row, "vol") * 100, // tushare vol is in lots
		}
		if lim, ok := limitByDate[tradeDate]; ok {
			bar.HighLimit = lim[0]
			bar.LowLimit = lim[1]
		}
		bars = append(bars, bar)
	}

	if cacheable {
		if raw, err := json.Marshal(bars); err == nil {
			if err := common.CacheSet(key, raw); err != nil {
				log.Warn().Err(err).Str("Key", key).Msg("could not cache bars")
			}
		}
	}
	return bars, nil
}

func (t *Tushare) GetPrice(ctx context.Context, securities []market.Security, begin, end time.Time, metric string) (*dataframe.DataFrame, error) {
	dfMap := dataframe.DataFrameMap{}
	for _, sec := range securities {
		bars, err := t.GetBars(ctx, sec, begin, end)
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

func (t *Tushare) GetAdjFactors(ctx context.Context, security market.Security, begin, end time.Time) ([]AdjFactor, error) {
	rs, err := t.call(ctx, "adj_factor", map[string]string{
		"ts_code":    tushareCode(security),
		"start_date": begin.Format(tushareDateFormat),
		"end_date":   end.Format(tushareDateFormat),
	}, "trade_date,adj_factor")
	if err != nil {
		return nil, err
	}

	factors := make([]AdjFactor, 0, rs.len())
	// tushare returns newest first
	for row := rs.len() - 1; row >= 0; row-- {
		dt, err := time.ParseInLocation(tushareDateFormat, rs.str(row, "trade_date"), t.tz)
		if err != nil {
			return nil, err
		}
		factors = append(factors, AdjFactor{Date: dt, Factor: rs.float(row, "adj_factor")})
	}
	return factors, nil
}

func (t *Tushare) GetTradeDays(ctx context.Context, begin, end time.Time) ([]time.Time, error) {
	rs, err := t.call(ctx, "trade_cal", map[string]string{
		"exchange":   "SSE",
		"start_date": begin.Format(tushareDateFormat),
		"end_date":   end.Format(tushareDateFormat),
		"is_open":    "1",
	}, "cal_date")
	if err != nil {
		return nil, err
	}

	days := make([]time.Time, 0, rs.len())
	for row := rs.len() - 1; row >= 0; row-- {
		dt, err := time.ParseInLocation(tushareDateFormat, rs.str(row, "cal_date"), t.tz)
		if err != nil {
			return nil, err
		}
		days = append(days, dt)
	}
	return days, nil
}

func (t *Tushare) GetAllSecurities(ctx context.Context, _ time.Time) ([]*SecurityInfo, error) {
	rs, err := t.call(ctx, "stock_basic", map[string]string{
		"list_status": "L",
	}, "ts_code,name,list_date,delist_date")
	if err != nil {
		return nil, err
	}

	infos := make([]*SecurityInfo, 0, rs.len())
	for row := 0; row < rs.len(); row++ {
		sec, err := parseTushareCode(rs.str(row, "ts_code"))
		if err != nil {
			log.Warn().Str("Ticker", rs.str(row, "ts_code")).Msg("skipping unparseable ticker")
			continue
		}

		info := &SecurityInfo{Security: sec, Name: rs.str(row, "name")}
		if listDate := rs.str(row, "list_date"); listDate != "" {
			if info.ListDate, err = time.ParseInLocation(tushareDateFormat, listDate, t.tz); err != nil {
				return nil, err
			}
		}
		if delistDate := rs.str(row, "delist_date"); delistDate != "" {
			if info.DelistDate, err = time.ParseInLocation(tushareDateFormat, delistDate, t.tz); err != nil {
				return nil, err
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (t *Tushare) GetIndexStocks(ctx context.Context, index market.Security, on time.Time) ([]market.Security, error) {
	rs, err := t.call(ctx, "index_weight", map[string]string{
		"index_code": tushareCode(index),
		"trade_date": on.Format(tushareDateFormat),
	}, "con_code")
	if err != nil {
		return nil, err
	}

	members := make([]market.Security, 0, rs.len())
	for row := 0; row < rs.len(); row++ {
		sec, err := parseTushareCode(rs.str(row, "con_code"))
		if err != nil {
			log.Warn().Str("Ticker", rs.str(row, "con_code")).Msg("skipping unparseable index member")
			continue
		}
		members = append(members, sec)
	}
	return members, nil
}

func (t *Tushare) GetSplitDividend(ctx context.Context, on time.Time) ([]*CorporateAction, error) {
	rs, err := t.call(ctx, "dividend", map[string]string{
		"ex_date": on.Format(tushareDateFormat),
	}, "ts_code,stk_div,cash_div_tax")
	if err != nil {
		return nil, err
	}

	actions := make([]*CorporateAction, 0, rs.len())
	for row := 0; row < rs.len(); row++ {
		sec, err := parseTushareCode(rs.str(row, "ts_code"))
		if err != nil {
			log.Warn().Str("Ticker", rs.str(row, "ts_code")).Msg("skipping unparseable corporate action")
			continue
		}
		// tushare reports per-share values; keep PerBase 1 so the payout
		// formula needs no rescaling
		actions = append(actions, &CorporateAction{
			Security:    sec,
			ExDate:      market.Midnight(on),
			PerBase:     1,
			BonusPreTax: rs.float(row, "cash_div_tax"),
			ScaleFactor: 1 + rs.float(row, "stk_div"),
		})
	}
	return actions, nil
}

func (t *Tushare) GetLiveCurrent(ctx context.Context, securities []market.Security) ([]*Quote, error) {
	codes := make([]string, 0, len(securities))
	for _, sec := range securities {
		codes = append(codes, tushareCode(sec))
	}

	rs, err := t.call(ctx, "realtime_quote", map[string]string{
		"ts_code": strings.Join(codes, ","),
	}, "ts_code,date,time,open,high,low,price,volume")
	if err != nil {
		return nil, err
	}

	bySec := make(map[market.Security]*Quote, rs.len())
	for row := 0; row < rs.len(); row++ {
		sec, err := parseTushareCode(rs.str(row, "ts_code"))
		if err != nil {
			continue
		}
		at, err := time.ParseInLocation(tushareDateFormat+" 15:04:05", rs.str(row, "date")+" "+rs.str(row, "time"), t.tz)
		if err != nil {
			at = time.Now().In(t.tz)
		}
		bySec[sec] = &Quote{
			Security: sec,
			Time:     at,
			Price:    rs.float(row, "price"),
			Open:     rs.float(row, "open"),
			High:     rs.float(row, "high"),
			Low:      rs.float(row, "low"),
			Volume:   rs.float(row, "volume"),
		}
	}

	out := make([]*Quote, 0, len(securities))
	for _, sec := range securities {
		q, ok := bySec[sec]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoData, sec)
		}
		out = append(out, q)
	}
	return out, nil
}
