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

package tradecron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/market"
)

var (
	ErrInvalidTimeExpression = errors.New("invalid time expression")
	ErrNotFixedTime          = errors.New("expression does not resolve to a fixed time of day")
	ErrFieldOutOfBounds      = errors.New("resolved time falls outside the day")
)

// Frequency is the driver's bar frequency; it changes how every_bar resolves
type Frequency string

const (
	Daily  Frequency = "daily"
	Minute Frequency = "minute"
)

// Kind enumerates the supported time expression variants
type Kind int

const (
	KindOffset Kind = iota
	KindExplicit
	KindEveryMinute
	KindEveryBar
)

// Anchor is the session edge an offset expression is relative to
type Anchor int

const (
	AnchorOpen Anchor = iota
	AnchorClose
)

// TimeSpec is a parsed, reusable time expression. Parsing is pure; Resolve
// produces the firing times for one trade day.
//
// Accepted forms:
//
//	open  close  open±<n>[smh]  close±<n>[smh]  HH:MM  HH:MM:SS
//	every_minute  every_bar
type TimeSpec struct {
	Raw    string
	Kind   Kind
	Anchor Anchor
	Offset time.Duration
	Clock  time.Duration
}

// Parse turns an expression string into a TimeSpec. Any input outside the
// accepted grammar fails with ErrInvalidTimeExpression.
func Parse(expr string) (*TimeSpec, error) {
	raw := strings.TrimSpace(expr)

	switch raw {
	case "every_minute":
		return &TimeSpec{Raw: raw, Kind: KindEveryMinute}, nil
	case "every_bar":
		return &TimeSpec{Raw: raw, Kind: KindEveryBar}, nil
	case "open":
		return &TimeSpec{Raw: raw, Kind: KindOffset, Anchor: AnchorOpen}, nil
	case "close":
		return &TimeSpec{Raw: raw, Kind: KindOffset, Anchor: AnchorClose}, nil
	}

	if strings.HasPrefix(raw, "open+") || strings.HasPrefix(raw, "open-") {
		off, err := parseOffset(raw[4:])
		if err != nil {
			return nil, err
		}
		return &TimeSpec{Raw: raw, Kind: KindOffset, Anchor: AnchorOpen, Offset: off}, nil
	}
	if strings.HasPrefix(raw, "close+") || strings.HasPrefix(raw, "close-") {
		off, err := parseOffset(raw[5:])
		if err != nil {
			return nil, err
		}
		return &TimeSpec{Raw: raw, Kind: KindOffset, Anchor: AnchorClose, Offset: off}, nil
	}

	if clock, err := parseExplicit(raw); err == nil {
		return &TimeSpec{Raw: raw, Kind: KindExplicit, Clock: clock}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, expr)
}

// parseOffset parses "+30m", "-30s", "+1h" into a signed duration
func parseOffset(s string) (time.Duration, error) {
	if len(s) < 3 {
		return 0, fmt.Errorf("%w: bad offset %q", ErrInvalidTimeExpression, s)
	}

	sign := time.Duration(1)
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("%w: bad offset %q", ErrInvalidTimeExpression, s)
	}

	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad offset %q", ErrInvalidTimeExpression, s)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return 0, fmt.Errorf("%w: bad offset unit %q", ErrInvalidTimeExpression, s)
	}

	return sign * time.Duration(n) * unit, nil
}

// parseExplicit parses "HH:MM" or "HH:MM:SS" into an offset from midnight
func parseExplicit(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, ErrInvalidTimeExpression
	}

	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, ErrInvalidTimeExpression
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, ErrInvalidTimeExpression
		}
		vals[i] = v
	}

	if vals[0] > 23 || vals[1] > 59 {
		return 0, ErrInvalidTimeExpression
	}
	clock := time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute
	if len(vals) == 3 {
		if vals[2] > 59 {
			return 0, ErrInvalidTimeExpression
		}
		clock += time.Duration(vals[2]) * time.Second
	}
	return clock, nil
}

// Resolve returns the ordered, duplicate-free firing times for one trade
// day. Offset points may legitimately fall outside the sessions; they need
// not coincide with bars.
func (ts *TimeSpec) Resolve(day time.Time, periods []market.Period, freq Frequency) []time.Time {
	switch ts.Kind {
	case KindOffset:
		if ts.Anchor == AnchorOpen {
			return []time.Time{market.SessionOpen(day, periods).Add(ts.Offset)}
		}
		return []time.Time{market.SessionClose(day, periods).Add(ts.Offset)}
	case KindExplicit:
		return []time.Time{market.Midnight(day).Add(ts.Clock)}
	case KindEveryMinute:
		return market.SessionMinutes(day, periods)
	case KindEveryBar:
		if freq == Minute {
			return market.SessionMinutes(day, periods)
		}
		return []time.Time{market.SessionOpen(day, periods)}
	}
	return nil
}

// FixedClock returns the time-of-day offset for fixed-time expressions
func (ts *TimeSpec) FixedClock(periods []market.Period) (time.Duration, error) {
	switch ts.Kind {
	case KindExplicit:
		return ts.Clock, nil
	case KindOffset:
		var clock time.Duration
		if ts.Anchor == AnchorOpen {
			clock = periods[0].Open + ts.Offset
		} else {
			clock = periods[len(periods)-1].Close + ts.Offset
		}
		if clock < 0 || clock >= 24*time.Hour {
			return 0, ErrFieldOutOfBounds
		}
		return clock, nil
	}
	return 0, ErrNotFixedTime
}

// Schedule compiles the expression to a cron schedule used by the live
// driver to find the next wall-clock firing. every_minute and every_bar
// compile to a once-a-minute schedule; session filtering happens at dispatch.
func (ts *TimeSpec) Schedule(periods []market.Period) (cron.Schedule, error) {
	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	if ts.Kind == KindEveryMinute || ts.Kind == KindEveryBar {
		return specParser.Parse("0 * * * * *")
	}

	clock, err := ts.FixedClock(periods)
	if err != nil {
		return nil, err
	}

	h := int(clock / time.Hour)
	m := int(clock/time.Minute) % 60
	s := int(clock/time.Second) % 60
	spec := fmt.Sprintf("%d %d %d * * *", s, m, h)

	schedule, err := specParser.Parse(spec)
	if err != nil {
		log.Error().Err(err).Str("TimeSpec", spec).Str("Expression", ts.Raw).Msg("could not compile cron spec")
		return nil, err
	}
	return schedule, nil
}
