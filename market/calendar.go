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

package market

import (
	"errors"
	"sort"
	"time"
)

var ErrNoTradeDays = errors.New("calendar holds no trade days")

// Calendar is an ordered set of exchange trading days. Days are normalized to
// midnight in the exchange timezone.
type Calendar struct {
	days  []time.Time
	index map[int64]int
}

// NewCalendar builds a calendar from provider-supplied trading days
func NewCalendar(days []time.Time) *Calendar {
	normalized := make([]time.Time, 0, len(days))
	for _, d := range days {
		normalized = append(normalized, Midnight(d))
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Before(normalized[j]) })

	index := make(map[int64]int, len(normalized))
	for i, d := range normalized {
		index[d.Unix()] = i
	}

	return &Calendar{days: normalized, index: index}
}

// Days returns the trading days within [start, end] inclusive
func (c *Calendar) Days(start, end time.Time) []time.Time {
	start = Midnight(start)
	end = Midnight(end)
	out := make([]time.Time, 0, len(c.days))
	for _, d := range c.days {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// IsTradeDay reports whether d is an exchange trading day
func (c *Calendar) IsTradeDay(d time.Time) bool {
	_, ok := c.index[Midnight(d).Unix()]
	return ok
}

// Previous returns the last trading day strictly before d
func (c *Calendar) Previous(d time.Time) (time.Time, bool) {
	target := Midnight(d)
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(target) })
	if i == 0 {
		return time.Time{}, false
	}
	return c.days[i-1], true
}

// Next returns the first trading day strictly after d
func (c *Calendar) Next(d time.Time) (time.Time, bool) {
	target := Midnight(d)
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(target) })
	if i == len(c.days) {
		return time.Time{}, false
	}
	return c.days[i], true
}

// FirstTradeDayOnOrAfter returns the earliest trading day >= d
func (c *Calendar) FirstTradeDayOnOrAfter(d time.Time) (time.Time, bool) {
	target := Midnight(d)
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(target) })
	if i == len(c.days) {
		return time.Time{}, false
	}
	return c.days[i], true
}

// Len returns the number of days in the calendar
func (c *Calendar) Len() int { return len(c.days) }
