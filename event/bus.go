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

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Handler processes one event. Returning an error does not stop dispatch to
// the remaining handlers of the same event.
type Handler func(ctx context.Context, ev *Event) error

type subscription struct {
	id       uint64
	priority int
	handler  Handler
}

// Bus dispatches events to subscribers in descending priority, then
// subscription order. Emit is synchronous; EmitNowait enqueues for a later
// Drain. The bus is owned by the driver goroutine; Subscribe is safe to call
// from handlers.
type Bus struct {
	mu      sync.Mutex
	subs    map[Type][]subscription
	nextSub uint64
	seq     uint64
	queue   *Queue
}

func NewBus() *Bus {
	return &Bus{
		subs:  make(map[Type][]subscription),
		queue: NewQueue(),
	}
}

// Subscribe registers a handler for one event type and returns a
// subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(t Type, priority int, h Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	id := b.nextSub
	b.subs[t] = append(b.subs[t], subscription{id: id, priority: priority, handler: h})

	// stable sort keeps subscription order inside a priority band
	sort.SliceStable(b.subs[t], func(i, j int) bool {
		return b.subs[t][i].priority > b.subs[t][j].priority
	})
	return id
}

func (b *Bus) Unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[t]
	for i, s := range list {
		if s.id == id {
			b.subs[t] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// NextSeq allocates a FIFO tiebreaker for a new event
func (b *Bus) NextSeq() uint64 {
	return atomic.AddUint64(&b.seq, 1)
}

// Emit dispatches ev to every subscriber of its type and waits for each
// handler before moving to the next. A failing or panicking handler is
// logged and dispatch continues.
func (b *Bus) Emit(ctx context.Context, ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = b.NextSeq()
	}

	b.mu.Lock()
	handlers := make([]subscription, len(b.subs[ev.Type]))
	copy(handlers, b.subs[ev.Type])
	b.mu.Unlock()

	for _, sub := range handlers {
		b.invoke(ctx, sub, ev)
	}
}

// EmitNowait queues the event without awaiting handler completion
func (b *Bus) EmitNowait(ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = b.NextSeq()
	}
	b.queue.Push(ev)
}

// Drain dispatches every queued event in (time, priority, seq) order
func (b *Bus) Drain(ctx context.Context) {
	for {
		ev := b.queue.Pop()
		if ev == nil {
			return
		}
		b.Emit(ctx, ev)
	}
}

// Pending returns the number of queued, undispatched events
func (b *Bus) Pending() int { return b.queue.Len() }

func (b *Bus) invoke(ctx context.Context, sub subscription, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("EventType", string(ev.Type)).Uint64("Seq", ev.Seq).
				Err(fmt.Errorf("panic: %v", r)).Msg("event handler panicked")
		}
	}()

	if err := sub.handler(ctx, ev); err != nil {
		log.Error().Err(err).Str("EventType", string(ev.Type)).Uint64("Seq", ev.Seq).
			Int("Priority", sub.priority).Msg("event handler failed")
	}
}
