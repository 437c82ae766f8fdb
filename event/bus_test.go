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

package event_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lotus-quant/lq-engine/event"
)

var _ = Describe("Bus", func() {
	var bus *event.Bus

	BeforeEach(func() {
		bus = event.NewBus()
	})

	It("dispatches subscribers in descending priority then subscription order", func() {
		var order []string
		mk := func(name string) event.Handler {
			return func(_ context.Context, _ *event.Event) error {
				order = append(order, name)
				return nil
			}
		}

		bus.Subscribe(event.TypeMinuteBar, event.PriorityDefault, mk("low-a"))
		bus.Subscribe(event.TypeMinuteBar, event.PriorityAccountSync, mk("high"))
		bus.Subscribe(event.TypeMinuteBar, event.PriorityDefault, mk("low-b"))

		bus.Emit(context.Background(), &event.Event{Type: event.TypeMinuteBar})
		Expect(order).To(Equal([]string{"high", "low-a", "low-b"}))
	})

	It("continues past failing and panicking handlers", func() {
		var invoked []string
		bus.Subscribe(event.TypeOrdersSync, 3, func(_ context.Context, _ *event.Event) error {
			invoked = append(invoked, "err")
			return errors.New("boom")
		})
		bus.Subscribe(event.TypeOrdersSync, 2, func(_ context.Context, _ *event.Event) error {
			invoked = append(invoked, "panic")
			panic("kaboom")
		})
		bus.Subscribe(event.TypeOrdersSync, 1, func(_ context.Context, _ *event.Event) error {
			invoked = append(invoked, "ok")
			return nil
		})

		bus.Emit(context.Background(), &event.Event{Type: event.TypeOrdersSync})
		Expect(invoked).To(Equal([]string{"err", "panic", "ok"}))
	})

	It("drains queued events in (time, priority, seq) order", func() {
		var seen []string
		bus.Subscribe(event.TypeScheduledTask, event.PriorityDefault, func(_ context.Context, ev *event.Event) error {
			seen = append(seen, ev.Payload.(string))
			return nil
		})

		t0 := time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)
		t1 := t0.Add(time.Minute)

		bus.EmitNowait(&event.Event{Type: event.TypeScheduledTask, Time: t1, Priority: 1, Payload: "later"})
		bus.EmitNowait(&event.Event{Type: event.TypeScheduledTask, Time: t0, Priority: 1, Payload: "first-low"})
		bus.EmitNowait(&event.Event{Type: event.TypeScheduledTask, Time: t0, Priority: 9, Payload: "first-high"})

		bus.Drain(context.Background())
		Expect(seen).To(Equal([]string{"first-high", "first-low", "later"}))
		Expect(bus.Pending()).To(Equal(0))
	})

	It("unsubscribes handlers", func() {
		count := 0
		id := bus.Subscribe(event.TypeTick, 1, func(_ context.Context, _ *event.Event) error {
			count++
			return nil
		})
		bus.Emit(context.Background(), &event.Event{Type: event.TypeTick})
		bus.Unsubscribe(event.TypeTick, id)
		bus.Emit(context.Background(), &event.Event{Type: event.TypeTick})
		Expect(count).To(Equal(1))
	})
})

var _ = Describe("Queue", func() {
	It("keeps FIFO order for equal time and priority", func() {
		q := event.NewQueue()
		t0 := time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)

		q.Push(&event.Event{Time: t0, Priority: 1, Seq: 1, Payload: "a"})
		q.Push(&event.Event{Time: t0, Priority: 1, Seq: 2, Payload: "b"})
		q.Push(&event.Event{Time: t0, Priority: 1, Seq: 3, Payload: "c"})

		Expect(q.Pop().Payload).To(Equal("a"))
		Expect(q.Pop().Payload).To(Equal("b"))
		Expect(q.Pop().Payload).To(Equal("c"))
		Expect(q.Pop()).To(BeNil())
	})

	It("orders by time before priority", func() {
		q := event.NewQueue()
		t0 := time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)

		q.Push(&event.Event{Time: t0.Add(time.Second), Priority: 99, Seq: 1, Payload: "late"})
		q.Push(&event.Event{Time: t0, Priority: 1, Seq: 2, Payload: "early"})

		Expect(q.Pop().Payload).To(Equal("early"))
		Expect(q.Pop().Payload).To(Equal("late"))
	})
})
