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
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPeriods = errors.New("invalid market periods string")

// Period is one continuous trading session expressed as offsets from midnight
// exchange time. Close is exclusive for bar enumeration purposes.
type Period struct {
	Open  time.Duration
	Close time.Duration
}

// DefaultPeriods are the regular A-share sessions
var DefaultPeriods = []Period{
	{Open: 9*time.Hour + 30*time.Minute, Close: 11*time.Hour + 30*time.Minute},
	{Open: 13 * time.Hour, Close: 15 * time.Hour},
}

// ParsePeriods parses a session string such as "09:30-11:30,13:00-15:00"
func ParsePeriods(s string) ([]Period, error) {
	segments := strings.Split(strings.TrimSpace(s), ",")
	periods := make([]Period, 0, len(segments))
	for _, seg := range segments {
		bounds := strings.Split(strings.TrimSpace(seg), "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPeriods, s)
		}
		open, err := parseClock(bounds[0])
		if err != nil {
			return nil, err
		}
		closeAt, err := parseClock(bounds[1])
		if err != nil {
			return nil, err
		}
		if closeAt <= open {
			return nil, fmt.Errorf("%w: close before open in %q", ErrInvalidPeriods, seg)
		}
		periods = append(periods, Period{Open: open, Close: closeAt})
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriods, s)
	}
	return periods, nil
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriods, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriods, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Midnight truncates t to the start of its day, preserving the location
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SessionOpen is the open of the first session of the trade day
func SessionOpen(day time.Time, periods []Period) time.Time {
	return Midnight(day).Add(periods[0].Open)
}

// SessionClose is the close of the last session of the trade day
func SessionClose(day time.Time, periods []Period) time.Time {
	return Midnight(day).Add(periods[len(periods)-1].Close)
}

// InSession reports whether t falls inside any session of its day
func InSession(t time.Time, periods []Period) bool {
	offset := t.Sub(Midnight(t))
	for _, p := range periods {
		if offset >= p.Open && offset <= p.Close {
			return true
		}
	}
	return false
}

// SessionMinutes enumerates the start of every minute whose start lies within
// a session, excluding the close minute of each session.
func SessionMinutes(day time.Time, periods []Period) []time.Time {
	midnight := Midnight(day)
	var minutes []time.Time
	for _, p := range periods {
		for off := p.Open; off < p.Close; off += time.Minute {
			minutes = append(minutes, midnight.Add(off))
		}
	}
	return minutes
}

// FirstMinuteClose is the close of the first minute bar of the trade day,
// the boundary before which matching uses the day's opening price.
func FirstMinuteClose(day time.Time, periods []Period) time.Time {
	return SessionOpen(day, periods).Add(time.Minute)
}

// NextMinute rounds t up to the next whole minute boundary
func NextMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

// IsEventExpired reports whether a scheduled firing is older than the grace
// window; the live driver drops expired timeline points after reconnect.
func IsEventExpired(scheduled, now time.Time, graceSeconds int) bool {
	return now.Sub(scheduled) > time.Duration(graceSeconds)*time.Second
}
