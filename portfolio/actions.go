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

package portfolio

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/market"
)

// DividendTaxRate is withheld from stock dividends; fund payouts are exempt
const DividendTaxRate = 0.20

// ActionEngine applies splits and dividends to a portfolio on their ex
// dates. Events landing on a halted day are deferred and carried forward
// until the first unhalted trade day on which the position is still open;
// an event whose position closes before then is dropped.
type ActionEngine struct {
	pending []*data.CorporateAction
}

func NewActionEngine() *ActionEngine {
	return &ActionEngine{}
}

// Pending returns the deferred events still waiting for an unhalted day
func (e *ActionEngine) Pending() []*data.CorporateAction {
	out := make([]*data.CorporateAction, len(e.pending))
	copy(out, e.pending)
	return out
}

// Apply processes today's events plus any deferred ones against the
// portfolio. halted reports whether a security cannot trade today. Runs
// before the T+1 closeable update so split share counts carry the hold
// through.
func (e *ActionEngine) Apply(day time.Time, port *Portfolio, today []*data.CorporateAction, halted func(market.Security) bool) {
	queue := append(e.pending, today...)
	e.pending = nil

	for _, action := range queue {
		pos := port.Position(action.Security)
		if pos == nil {
			log.Debug().Stringer("Security", action.Security).
				Time("ExDate", action.ExDate).Msg("dropping corporate action; no position")
			continue
		}

		if halted != nil && halted(action.Security) {
			log.Info().Stringer("Security", action.Security).
				Time("ExDate", action.ExDate).Time("Day", day).
				Msg("deferring corporate action; security halted")
			e.pending = append(e.pending, action)
			continue
		}

		e.applyOne(port, pos, action)
	}
}

// applyOne adjusts shares by the scale factor and pays the cash dividend.
// The dividend is owed on the pre-split share count.
func (e *ActionEngine) applyOne(port *Portfolio, pos *Position, action *data.CorporateAction) {
	preSplit := pos.TotalAmount

	if action.ScaleFactor != 0 && action.ScaleFactor != 1 {
		pos.split(action.ScaleFactor)
	}

	if action.BonusPreTax != 0 && action.PerBase > 0 {
		gross := float64(preSplit) / float64(action.PerBase) * action.BonusPreTax
		net := gross
		if !action.Security.IsFund() {
			net = gross * (1 - DividendTaxRate)
		}
		port.PostCash(net)

		log.Info().Stringer("Security", action.Security).
			Time("ExDate", action.ExDate).Int64("Shares", preSplit).
			Float64("Gross", gross).Float64("Net", net).Msg("dividend posted")
	}

	if action.ScaleFactor != 0 && action.ScaleFactor != 1 {
		log.Info().Stringer("Security", action.Security).
			Time("ExDate", action.ExDate).Float64("ScaleFactor", action.ScaleFactor).
			Int64("Shares", pos.TotalAmount).Msg("share count adjusted")
	}
}
