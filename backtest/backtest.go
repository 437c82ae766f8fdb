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

// Package backtest drives a strategy over historical data on a virtual
// clock, matching orders against daily bars.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/observability/opentelemetry"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/risk"
	"github.com/lotus-quant/lq-engine/scheduler"
	"github.com/lotus-quant/lq-engine/strategy"
	"github.com/lotus-quant/lq-engine/tradecron"
)

var (
	ErrNoTradeDays = errors.New("no trade days in the backtest window")
	ErrBadWindow   = errors.New("end date not after start date")
	ErrThinVolume  = errors.New("day's volume cannot absorb any lot of the order")
)

// Config describes one backtest run
type Config struct {
	StartDate   time.Time
	EndDate     time.Time
	CapitalBase float64
	Frequency   tradecron.Frequency
	Benchmark   market.Security
	Periods     []market.Period
	Risk        *risk.Config
}

// Result is what a finished (or aborted) run reports
type Result struct {
	Records         []*portfolio.DailyRecord
	Trades          []*portfolio.Trade
	Orders          []*portfolio.Order
	Metrics         *portfolio.Metrics
	BenchmarkReturn float64
}

// Driver owns the portfolio, scheduler, and virtual clock for one run. It
// implements strategy.Runtime, so the strategy context routes orders and
// scheduling straight back into it.
type Driver struct {
	config  Config
	manager *data.Manager
	strat   strategy.Strategy

	sc      *strategy.Context
	sched   *scheduler.Scheduler
	port    *portfolio.Portfolio
	actions *portfolio.ActionEngine
	riskCtl *risk.Controller

	cost broker.OrderCost
	slip broker.Slippage

	currentDt time.Time
	dayBars   map[market.Security]*data.Bar
	orders    []*portfolio.Order
	benchmark market.Security

	logger zerolog.Logger
}

var _ strategy.Runtime = (*Driver)(nil)

func New(config Config, manager *data.Manager, strat strategy.Strategy) (*Driver, error) {
	if !config.EndDate.After(config.StartDate) {
		return nil, fmt.Errorf("%w: %s .. %s", ErrBadWindow,
			config.StartDate.Format("2006-01-02"), config.EndDate.Format("2006-01-02"))
	}
	if len(config.Periods) == 0 {
		config.Periods = market.DefaultPeriods
	}

	d := &Driver{
		config:    config,
		manager:   manager,
		strat:     strat,
		sched:     scheduler.New(config.Periods, config.Frequency),
		port:      portfolio.NewPortfolio(config.CapitalBase),
		actions:   portfolio.NewActionEngine(),
		cost:      broker.DefaultOrderCost(),
		slip:      broker.DefaultSlippage(),
		benchmark: config.Benchmark,
		dayBars:   make(map[market.Security]*data.Bar),
		logger:    log.With().Str("Driver", "backtest").Logger(),
	}
	if config.Risk != nil {
		d.riskCtl = risk.NewController(*config.Risk)
	}
	d.sc = strategy.NewContext(d)
	return d, nil
}

// Run executes the backtest to completion. A broken portfolio invariant
// aborts the run; the partial result is still returned.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("start_date", d.config.StartDate.Format("2006-01-02")),
		attribute.String("end_date", d.config.EndDate.Format("2006-01-02")),
		attribute.Float64("capital_base", d.config.CapitalBase),
	)

	cal, err := d.manager.Calendar(ctx, d.config.StartDate, d.config.EndDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build calendar")
		return nil, err
	}
	days := cal.Days(d.config.StartDate, d.config.EndDate)
	if len(days) == 0 {
		return nil, ErrNoTradeDays
	}

	d.currentDt = market.SessionOpen(days[0], d.config.Periods)
	if err := d.strat.Initialize(ctx, d.sc); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	if err := d.strat.ProcessInitialize(ctx, d.sc); err != nil {
		return nil, fmt.Errorf("process_initialize failed: %w", err)
	}

	for _, day := range days {
		if err := d.runDay(ctx, day, cal); err != nil {
			d.logger.Error().Err(err).Time("Day", day).Msg("run aborted")
			span.RecordError(err)
			span.SetStatus(codes.Error, "run aborted")
			return d.result(ctx), err
		}
	}

	return d.result(ctx), nil
}

func (d *Driver) runDay(ctx context.Context, day time.Time, cal *market.Calendar) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.runDay")
	defer span.End()
	span.SetAttributes(attribute.String("day", day.Format("2006-01-02")))

	d.currentDt = market.SessionOpen(day, d.config.Periods)
	d.loadDayBars(ctx, day)

	todays, err := d.manager.GetSplitDividend(ctx, day)
	if err != nil {
		// no corporate actions is semantically safe on provider failure
		d.logger.Warn().Err(err).Time("Day", day).Msg("corporate actions unavailable")
		todays = nil
	}
	d.actions.Apply(day, d.port, d.heldOnly(todays), func(s market.Security) bool {
		return d.halted(ctx, s, day)
	})

	d.port.UpdateCloseable()
	if d.riskCtl != nil {
		d.riskCtl.ResetDaily()
	}

	if err := d.strat.BeforeTradingStart(ctx, d.sc); err != nil {
		return fmt.Errorf("before_trading_start failed: %w", err)
	}

	open := market.SessionOpen(day, d.config.Periods)
	timeline := d.sched.Timeline(day, cal)
	if d.config.Frequency == tradecron.Daily && !hasPoint(timeline, open) {
		timeline = insertPoint(timeline, scheduler.TimePoint{Time: open})
	}

	for _, tp := range timeline {
		d.currentDt = tp.Time
		for _, task := range tp.Tasks {
			task.Dispatch(ctx, tp.Time, nil)
		}
		if d.config.Frequency == tradecron.Daily && tp.Time.Equal(open) {
			if err := d.strat.HandleData(ctx, d.sc, d.CurrentData()); err != nil {
				return fmt.Errorf("handle_data failed: %w", err)
			}
		}
	}
	d.sched.CommitDay(day, cal)

	// post-close tasks may already have advanced the clock past the session
	// close; it never moves backwards
	if close := market.SessionClose(day, d.config.Periods); d.currentDt.Before(close) {
		d.currentDt = close
	}

	_, recSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.RecordDay")
	d.markToMarket()
	rec, err := d.port.RecordDay(day)
	if err != nil {
		recSpan.RecordError(err)
		recSpan.SetStatus(codes.Error, "portfolio invariant broken")
		recSpan.End()
		return err
	}
	recSpan.SetAttributes(
		attribute.Float64("total_value", rec.TotalValue),
		attribute.Float64("cash", rec.Cash),
	)
	recSpan.End()
	if err := d.strat.AfterTradingEnd(ctx, d.sc); err != nil {
		return fmt.Errorf("after_trading_end failed: %w", err)
	}
	return nil
}

// loadDayBars caches today's bars for every security the driver already
// knows about; other securities load lazily through barFor.
func (d *Driver) loadDayBars(ctx context.Context, day time.Time) {
	d.dayBars = make(map[market.Security]*data.Bar)
	for _, pos := range d.port.Positions() {
		d.barFor(ctx, pos.Security, day)
	}
}

func (d *Driver) barFor(ctx context.Context, security market.Security, day time.Time) *data.Bar {
	if bar, ok := d.dayBars[security]; ok {
		return bar
	}
	bar, err := d.manager.GetBar(ctx, security, day)
	if err != nil {
		d.logger.Warn().Err(err).Stringer("Security", security).Time("Day", day).
			Msg("no bar for security")
		bar = nil
	}
	d.dayBars[security] = bar
	return bar
}

// halted treats missing data as halted
func (d *Driver) halted(ctx context.Context, security market.Security, day time.Time) bool {
	return d.barFor(ctx, security, day).Halted()
}

func (d *Driver) heldOnly(actions []*data.CorporateAction) []*data.CorporateAction {
	out := make([]*data.CorporateAction, 0, len(actions))
	for _, a := range actions {
		if d.port.Position(a.Security) != nil {
			out = append(out, a)
		}
	}
	return out
}

func (d *Driver) markToMarket() {
	prices := make(map[market.Security]float64)
	for _, pos := range d.port.Positions() {
		if bar := d.dayBars[pos.Security]; bar != nil && bar.Close > 0 {
			prices[pos.Security] = bar.Close
		}
	}
	d.port.MarkToMarket(prices)
}

func (d *Driver) result(ctx context.Context) *Result {
	res := &Result{
		Records: d.port.Records(),
		Trades:  d.port.Trades(),
		Orders:  d.orders,
		Metrics: portfolio.CalculateMetrics(d.port.Records(), 0.0),
	}
	if d.benchmark != (market.Security{}) {
		res.BenchmarkReturn = d.benchmarkReturn(ctx)
	}
	return res
}

func (d *Driver) benchmarkReturn(ctx context.Context) float64 {
	bars, err := d.manager.GetBars(ctx, d.benchmark, d.config.StartDate, d.config.EndDate)
	if err != nil || len(bars) < 2 {
		return 0
	}
	first, last := bars[0].Close, bars[len(bars)-1].Close
	if first <= 0 {
		return 0
	}
	return last/first - 1
}

func insertPoint(timeline []scheduler.TimePoint, tp scheduler.TimePoint) []scheduler.TimePoint {
	i := sort.Search(len(timeline), func(i int) bool {
		return !timeline[i].Time.Before(tp.Time)
	})
	timeline = append(timeline, scheduler.TimePoint{})
	copy(timeline[i+1:], timeline[i:])
	timeline[i] = tp
	return timeline
}

func hasPoint(timeline []scheduler.TimePoint, at time.Time) bool {
	for _, tp := range timeline {
		if tp.Time.Equal(at) {
			return true
		}
	}
	return false
}
