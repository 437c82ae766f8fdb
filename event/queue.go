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

import "container/heap"

// Queue orders events by ascending (time, -priority, seq). The driver uses
// it to merge scheduled-task firings with matching callbacks at the same
// timepoint.
type Queue struct {
	items eventHeap
}

func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

func (q *Queue) Push(ev *Event) {
	heap.Push(&q.items, ev)
}

// Pop removes and returns the front event, or nil when empty
func (q *Queue) Pop() *Event {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*Event)
}

// Peek returns the front event without removing it, or nil when empty
func (q *Queue) Peek() *Event {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *Queue) Len() int { return len(q.items) }

type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if !h[i].Time.Equal(h[j].Time) {
		return h[i].Time.Before(h[j].Time)
	}
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
