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

// Package live runs a strategy against a real broker on the wall clock,
// persisting the strategy's globals between callbacks.
package live

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lotus-quant/lq-engine/broker"
	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/event"
	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/messenger"
	"github.com/lotus-quant/lq-engine/portfolio"
	"github.com/lotus-quant/lq-engine/risk"
	"github.com/lotus-quant/lq-engine/scheduler"
	"github.com/lotus-quant/lq-engine/strategy"
	"github.com/lotus-quant/lq-engine/tradecron"
)

var ErrNoBroker = errors.New("live driver needs a broker adapter")

// GlobalsFile is the persisted strategy state under the runtime dir
const GlobalsFile = "g.json"

// Config describes one live session
type Config struct {
	RuntimeDir string
	Periods    []market.Period
	Risk       *risk.Config

	// AutosaveInterval is how often the globals bag is written in the
	// background, on top of the write after each callback
	AutosaveInterval time.Duration
	// SyncInterval is how often open orders are reconciled with the venue
	SyncInterval time.Duration
	// ExpireGraceSeconds is how stale a scheduled firing may be before a
	// mid-day start skips it instead of running it late
	ExpireGraceSeconds int
	// ListenAddr serves the status API when non-empty
	ListenAddr string
}

// Driver trades a strategy on the wall clock through a broker adapter. It
// implements strategy.Runtime.
type Driver struct {
	config  Config
	manager *data.Manager
	adapter broker.Adapter
	strat   strategy.Strategy
	msgr    *messenger.Messenger
	bus     *event.Bus

	sc      *strategy.Context
	sched   *scheduler.Scheduler
	port    *portfolio.Portfolio
	actions *portfolio.ActionEngine
	riskCtl *risk.Controller

	currentDt time.Time
	orders    []*portfolio.Order
	benchmark market.Security

	logger zerolog.Logger
}

var _ strategy.Runtime = (*Driver)(nil)

func New(config Config, manager *data.Manager, adapter broker.Adapter, strat strategy.Strategy) (*Driver, error) {
	if adapter == nil {
		return nil, ErrNoBroker
	}
	if len(config.Periods) == 0 {
		config.Periods = market.DefaultPeriods
	}
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = time.Minute
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.ExpireGraceSeconds <= 0 {
		config.ExpireGraceSeconds = 300
	}

	d := &Driver{
		config:  config,
		manager: manager,
		adapter: adapter,
		strat:   strat,
		sched:   scheduler.New(config.Periods, tradecron.Minute),
		actions: portfolio.NewActionEngine(),
		msgr:    messenger.New(),
		bus:     event.NewBus(),
		logger:  log.With().Str("Driver", "live").Logger(),
	}
	if config.Risk != nil {
		d.riskCtl = risk.NewController(*config.Risk)
	}
	d.sc = strategy.NewContext(d)

	d.bus.Subscribe(event.TypeScheduledTask, event.PriorityDefault, func(ctx context.Context, ev *event.Event) error {
		task := ev.Payload.(*scheduler.Task)
		task.Dispatch(ctx, ev.Time, func() { d.persistGlobals() })
		return nil
	})
	d.bus.Subscribe(event.TypeOrdersSync, event.PriorityOrdersSync, func(ctx context.Context, _ *event.Event) error {
		return d.reconcileOrders(ctx)
	})
	return d, nil
}

func (d *Driver) globalsPath() string {
	return filepath.Join(d.config.RuntimeDir, GlobalsFile)
}

// Run connects, rehydrates state, and loops day by day until the context is
// cancelled.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect failed: %w", err)
	}
	defer func() {
		if err := d.adapter.Disconnect(context.Background()); err != nil {
			d.logger.Warn().Err(err).Msg("broker disconnect failed")
		}
	}()

	if err := d.syncAccount(ctx); err != nil {
		return err
	}
	if err := d.sc.G.Load(d.globalsPath()); err != nil {
		return fmt.Errorf("couldn't restore strategy globals: %w", err)
	}

	d.currentDt = time.Now().In(common.GetTimezone())
	if err := d.strat.Initialize(ctx, d.sc); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	if err := d.strat.ProcessInitialize(ctx, d.sc); err != nil {
		return fmt.Errorf("process_initialize failed: %w", err)
	}

	jobs := gocron.NewScheduler(common.GetTimezone())
	if _, err := jobs.Every(d.config.AutosaveInterval).Do(func() {
		d.persistGlobals()
	}); err != nil {
		return err
	}
	if _, err := jobs.Every(d.config.SyncInterval).Do(func() {
		d.bus.Emit(context.Background(), &event.Event{
			Type: event.TypeOrdersSync,
			Time: time.Now().In(common.GetTimezone()),
		})
	}); err != nil {
		return err
	}
	jobs.StartAsync()
	defer jobs.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if d.config.ListenAddr != "" {
		api := d.newAPI()
		g.Go(func() error { return api.Listen(d.config.ListenAddr) })
		g.Go(func() error {
			<-gctx.Done()
			return api.Shutdown()
		})
	}
	g.Go(func() error { return d.loop(gctx) })

	err := g.Wait()
	d.persistGlobals()
	d.msgr.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop advances across trade days, sleeping through closed markets
func (d *Driver) loop(ctx context.Context) error {
	for {
		now := time.Now().In(common.GetTimezone())
		day := market.Midnight(now)

		cal, err := d.manager.Calendar(ctx, day.AddDate(0, 0, -14), day.AddDate(0, 0, 14))
		if err != nil {
			return err
		}

		if cal.IsTradeDay(day) && now.Before(market.SessionClose(day, d.config.Periods)) {
			if err := d.runDay(ctx, day, cal); err != nil {
				return err
			}
		}

		next := market.Midnight(day.AddDate(0, 0, 1))
		if err := sleepUntil(ctx, next); err != nil {
			return err
		}
	}
}

func (d *Driver) runDay(ctx context.Context, day time.Time, cal *market.Calendar) error {
	// a mid-session start joins the minute dispatch grid at the next boundary
	d.currentDt = time.Now().In(common.GetTimezone())
	if market.InSession(d.currentDt, d.config.Periods) {
		d.currentDt = market.NextMinute(d.currentDt)
	}

	todays, err := d.manager.GetSplitDividend(ctx, day)
	if err != nil {
		d.logger.Warn().Err(err).Time("Day", day).Msg("corporate actions unavailable")
		todays = nil
	}
	d.actions.Apply(day, d.port, todays, func(s market.Security) bool {
		return d.haltedLive(ctx, s)
	})

	d.port.UpdateCloseable()
	if d.riskCtl != nil {
		d.riskCtl.ResetDaily()
	}
	if err := d.strat.BeforeTradingStart(ctx, d.sc); err != nil {
		return fmt.Errorf("before_trading_start failed: %w", err)
	}
	d.persistGlobals()

	for _, tp := range d.sched.Timeline(day, cal) {
		// a start or reconnect long after the scheduled time drops the
		// firing rather than running it against stale prices
		if now := time.Now().In(common.GetTimezone()); market.IsEventExpired(tp.Time, now, d.config.ExpireGraceSeconds) {
			d.logger.Warn().Time("Scheduled", tp.Time).Time("Now", now).
				Msg("skipping expired timeline point")
			continue
		}
		if err := sleepUntil(ctx, tp.Time); err != nil {
			return err
		}

		now := time.Now().In(common.GetTimezone())
		d.currentDt = tp.Time
		delay := now.Sub(tp.Time)
		if delay > time.Second {
			d.logger.Warn().Time("Scheduled", tp.Time).Dur("Delay", delay).
				Msg("dispatch running behind the exchange clock")
		}

		for _, task := range tp.Tasks {
			d.bus.EmitNowait(&event.Event{
				Type:    event.TypeScheduledTask,
				Time:    tp.Time,
				Payload: task,
			})
		}
		d.bus.Drain(ctx)
	}
	d.sched.CommitDay(day, cal)

	sessionClose := market.SessionClose(day, d.config.Periods)
	if err := sleepUntil(ctx, sessionClose); err != nil {
		return err
	}
	d.currentDt = sessionClose

	d.markToMarketLive(ctx)
	if _, err := d.port.RecordDay(day); err != nil {
		return err
	}
	if err := d.strat.AfterTradingEnd(ctx, d.sc); err != nil {
		return fmt.Errorf("after_trading_end failed: %w", err)
	}
	d.persistGlobals()
	return nil
}

// syncAccount seeds the local ledger from the broker's view
func (d *Driver) syncAccount(ctx context.Context) error {
	info, err := d.adapter.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("couldn't read account info: %w", err)
	}
	d.port = portfolio.NewPortfolio(info.TotalValue)
	d.port.Cash = info.Cash

	positions, err := d.adapter.Positions(ctx)
	if err != nil {
		return fmt.Errorf("couldn't read positions: %w", err)
	}
	for _, p := range positions {
		d.port.SeedPosition(p.Security, p.TotalAmount, p.CloseableAmount, p.AvgCost, p.LastPrice)
	}
	d.logger.Info().Str("AccountID", info.AccountID).Float64("Cash", info.Cash).
		Int("Positions", len(positions)).Msg("account synced")
	return nil
}

func (d *Driver) haltedLive(ctx context.Context, security market.Security) bool {
	quotes, err := d.manager.GetLiveCurrent(ctx, []market.Security{security})
	if err != nil || len(quotes) == 0 {
		return true
	}
	return quotes[0].Paused || quotes[0].Volume == 0
}

func (d *Driver) markToMarketLive(ctx context.Context) {
	positions := d.port.Positions()
	securities := make([]market.Security, 0, len(positions))
	for _, pos := range positions {
		securities = append(securities, pos.Security)
	}
	if len(securities) == 0 {
		return
	}

	quotes, err := d.manager.GetLiveCurrent(ctx, securities)
	if err != nil {
		d.logger.Warn().Err(err).Msg("couldn't mark portfolio to market")
		return
	}
	prices := make(map[market.Security]float64, len(quotes))
	for _, q := range quotes {
		prices[q.Security] = q.Price
	}
	d.port.MarkToMarket(prices)
}

func (d *Driver) persistGlobals() {
	if d.config.RuntimeDir == "" {
		return
	}
	if err := d.sc.G.Save(d.globalsPath()); err != nil {
		d.logger.Error().Err(err).Str("Path", d.globalsPath()).
			Msg("couldn't persist strategy globals")
	}
}

func sleepUntil(ctx context.Context, at time.Time) error {
	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
