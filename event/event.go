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

package event

import "time"

// Type tags an event variant
type Type string

const (
	TypeAccountSync        Type = "account_sync"
	TypeOrdersSync         Type = "orders_sync"
	TypeMinuteBar          Type = "minute_bar"
	TypeScheduledTask      Type = "scheduled_task"
	TypeBeforeTradingStart Type = "before_trading_start"
	TypeAfterTradingEnd    Type = "after_trading_end"
	TypeTick               Type = "tick"
)

// Predefined dispatch priorities, higher first
const (
	PriorityAccountSync = 40
	PriorityOrdersSync  = 30
	PriorityMinuteBar   = 20
	PriorityDefault     = 10
)

// Event is a dispatchable record. Time is virtual time in backtest and the
// exchange clock in live mode. Seq breaks ties FIFO within a priority.
type Event struct {
	Type     Type
	Priority int
	Seq      uint64
	Time     time.Time
	Payload  any
}

// DefaultPriority maps an event type to its conventional priority
func DefaultPriority(t Type) int {
	switch t {
	case TypeAccountSync:
		return PriorityAccountSync
	case TypeOrdersSync:
		return PriorityOrdersSync
	case TypeMinuteBar, TypeTick:
		return PriorityMinuteBar
	default:
		return PriorityDefault
	}
}
