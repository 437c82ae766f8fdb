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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/tradecron"
)

var (
	ErrTaskNotFound  = errors.New("scheduled task not found")
	ErrBadWeekday    = errors.New("weekday must be in 0..6 (0 = Monday)")
	ErrBadMonthday   = errors.New("monthday must be in 1..31")
	ErrNilCallback   = errors.New("callback must not be nil")
)

// OverlapPolicy controls what happens when a task triggers while its
// previous invocation is still running
type OverlapPolicy int

const (
	// Skip drops the new trigger (default)
	Skip OverlapPolicy = iota
	// Wait serializes the new trigger after the running invocation
	Wait
	// Concurrent runs both invocations at once
	Concurrent
)

// Scope restricts which trade days a task fires on
type Scope int

const (
	ScopeDaily Scope = iota
	ScopeWeekly
	ScopeMonthly
)

// Callback is a strategy task body. It receives the driver context and the
// virtual firing time.
type Callback func(ctx context.Context, at time.Time) error

// Task is one scheduled entry in the registry
type Task struct {
	ID       string
	Spec     *tradecron.TimeSpec
	Scope    Scope
	Weekday  int // 0 = Monday, only for ScopeWeekly
	Monthday int // 1..31, only for ScopeMonthly
	Overlap  OverlapPolicy
	Enabled  bool

	callback Callback
	mu       sync.Mutex // held while the callback runs
}

// Dispatch runs the task callback honoring its overlap policy. done, when
// not nil, runs after the callback completes (used by the live driver to
// persist state).
func (t *Task) Dispatch(ctx context.Context, at time.Time, done func()) {
	run := func() {
		if err := t.callback(ctx, at); err != nil {
			log.Error().Err(err).Str("TaskID", t.ID).Time("At", at).Msg("scheduled task failed")
		}
		if done != nil {
			done()
		}
	}

	// the mutex exists only to serialize Skip and Wait; Concurrent
	// invocations run unguarded
	switch t.Overlap {
	case Skip:
		if !t.mu.TryLock() {
			log.Warn().Str("TaskID", t.ID).Time("At", at).Msg("previous invocation still running; trigger skipped")
			return
		}
		run()
		t.mu.Unlock()
	case Wait:
		t.mu.Lock()
		run()
		t.mu.Unlock()
	case Concurrent:
		go run()
	}
}

// TimePoint is one entry of a day's timeline: the firing time and the tasks
// due at it in registration order.
type TimePoint struct {
	Time  time.Time
	Tasks []*Task
}

// Scheduler owns the task registry and produces per-day timelines. It is
// owned by the driver; strategies reach it through the context API.
type Scheduler struct {
	mu           sync.Mutex
	tasks        []*Task
	periods      []market.Period
	freq         tradecron.Frequency
	firedMonthly map[string]bool // "taskID:year-month"
}

func New(periods []market.Period, freq tradecron.Frequency) *Scheduler {
	if len(periods) == 0 {
		periods = market.DefaultPeriods
	}
	return &Scheduler{
		periods:      periods,
		freq:         freq,
		firedMonthly: make(map[string]bool),
	}
}

// Periods returns the market sessions the scheduler resolves against
func (s *Scheduler) Periods() []market.Period { return s.periods }

// Frequency returns the driver frequency used for every_bar resolution
func (s *Scheduler) Frequency() tradecron.Frequency { return s.freq }

// RunDaily registers a task that fires every trade day
func (s *Scheduler) RunDaily(cb Callback, expr string, overlap OverlapPolicy) (string, error) {
	return s.register(cb, expr, ScopeDaily, 0, 0, overlap)
}

// RunWeekly registers a task that fires on one weekday (0 = Monday)
func (s *Scheduler) RunWeekly(cb Callback, weekday int, expr string) (string, error) {
	if weekday < 0 || weekday > 6 {
		return "", ErrBadWeekday
	}
	return s.register(cb, expr, ScopeWeekly, weekday, 0, Skip)
}

// RunMonthly registers a task that fires once per calendar month on the
// first trade day whose day-of-month is >= monthday.
func (s *Scheduler) RunMonthly(cb Callback, monthday int, expr string) (string, error) {
	if monthday < 1 || monthday > 31 {
		return "", ErrBadMonthday
	}
	return s.register(cb, expr, ScopeMonthly, 0, monthday, Skip)
}

func (s *Scheduler) register(cb Callback, expr string, scope Scope, weekday, monthday int, overlap OverlapPolicy) (string, error) {
	if cb == nil {
		return "", ErrNilCallback
	}
	spec, err := tradecron.Parse(expr)
	if err != nil {
		return "", err
	}

	task := &Task{
		ID:       uuid.New().String(),
		Spec:     spec,
		Scope:    scope,
		Weekday:  weekday,
		Monthday: monthday,
		Overlap:  overlap,
		Enabled:  true,
		callback: cb,
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	log.Debug().Str("TaskID", task.ID).Str("Expression", expr).Int("Scope", int(scope)).Msg("scheduled task registered")
	return task.ID, nil
}

// Unschedule removes one task by id
func (s *Scheduler) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return ErrTaskNotFound
}

// UnscheduleAll clears the registry and monthly fire tracking
func (s *Scheduler) UnscheduleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.firedMonthly = make(map[string]bool)
}

// Enable re-arms a disabled task
func (s *Scheduler) Enable(id string) error { return s.setEnabled(id, true) }

// Disable stops a task from firing without removing it
func (s *Scheduler) Disable(id string) error { return s.setEnabled(id, false) }

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			t.Enabled = enabled
			return nil
		}
	}
	return ErrTaskNotFound
}

// Tasks returns a snapshot of the registry in registration order
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Timeline assembles the ordered firing plan for one trade day. The result
// is a pure function of the registry, the calendar, and the frequency;
// Timeline does not mutate fire tracking — the driver calls CommitDay after
// dispatching a day.
func (s *Scheduler) Timeline(day time.Time, cal *market.Calendar) []TimePoint {
	s.mu.Lock()
	tasks := make([]*Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	buckets := make(map[time.Time][]*Task)
	var order []time.Time

	for _, t := range tasks {
		if !t.Enabled || !s.scopeMatches(t, day, cal) {
			continue
		}
		for _, at := range t.Spec.Resolve(day, s.periods, s.freq) {
			if _, ok := buckets[at]; !ok {
				order = append(order, at)
			}
			buckets[at] = append(buckets[at], t)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	timeline := make([]TimePoint, 0, len(order))
	for _, at := range order {
		timeline = append(timeline, TimePoint{Time: at, Tasks: buckets[at]})
	}
	return timeline
}

// CommitDay records that day's monthly firings so a month never fires twice
func (s *Scheduler) CommitDay(day time.Time, cal *market.Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Scope != ScopeMonthly || !t.Enabled {
			continue
		}
		if s.isMonthlyTarget(t, day, cal) {
			s.firedMonthly[monthlyKey(t.ID, day)] = true
		}
	}
}

func (s *Scheduler) scopeMatches(t *Task, day time.Time, cal *market.Calendar) bool {
	switch t.Scope {
	case ScopeDaily:
		return true
	case ScopeWeekly:
		// weekday is Monday-based to match strategy-facing convention
		return (int(day.Weekday())+6)%7 == t.Weekday
	case ScopeMonthly:
		if s.firedMonthly[monthlyKey(t.ID, day)] {
			return false
		}
		return s.isMonthlyTarget(t, day, cal)
	}
	return false
}

// isMonthlyTarget reports whether day is the first trade day of its month
// with day-of-month >= the task's monthday, rolling forward across weekends
// and holidays.
func (s *Scheduler) isMonthlyTarget(t *Task, day time.Time, cal *market.Calendar) bool {
	// monthday 31 means the last day in shorter months, not a rollover
	// into the next month
	dom := t.Monthday
	if last := time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location()).Day(); dom > last {
		dom = last
	}
	target := time.Date(day.Year(), day.Month(), dom, 0, 0, 0, 0, day.Location())
	rolled, ok := cal.FirstTradeDayOnOrAfter(target)
	if !ok {
		return false
	}
	// a roll past month end pushes the firing into the next month's window
	return rolled.Equal(market.Midnight(day))
}

func monthlyKey(id string, day time.Time) string {
	return fmt.Sprintf("%s:%d-%d", id, day.Year(), int(day.Month()))
}
