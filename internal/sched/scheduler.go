/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package sched is a single-threaded cooperative scheduler on a virtual clock.
//
// Work is expressed as Tasks that are stepped once per Advance. A task suspends
// by returning false from Step and finishes by returning true. Nothing in this
// package is safe for concurrent use; a Loop owns the scheduler when it is driven
// in real time and other goroutines hand work to it through Loop.Post.
package sched

import (
	"log/slog"
	"time"

	vlog "vnplayer/internal/log"
)

// Task is a resumable unit of work. Step is called with the scheduler clock and
// reports whether the task has finished.
type Task interface {
	Step(now time.Duration) bool
}

// Func adapts a function to Task.
type Func func(now time.Duration) bool

func (f Func) Step(now time.Duration) bool { return f(now) }

// Handle controls a started task.
type Handle struct {
	name      string
	task      Task
	done      bool
	cancelled bool
	onCancel  []func()
}

// Name returns the name the task was started with.
func (h *Handle) Name() string { return h.name }

// Done reports whether the task finished on its own.
func (h *Handle) Done() bool { return h != nil && h.done }

// Cancelled reports whether Cancel stopped the task.
func (h *Handle) Cancelled() bool { return h != nil && h.cancelled }

// Live reports whether the task will be stepped again.
func (h *Handle) Live() bool { return h != nil && !h.done && !h.cancelled }

// OnCancel registers fn to run when the task is cancelled. Hooks never run after
// natural completion. Registering on an already cancelled handle runs fn at once.
func (h *Handle) OnCancel(fn func()) {
	if h == nil || fn == nil || h.done {
		return
	}
	if h.cancelled {
		fn()
		return
	}
	h.onCancel = append(h.onCancel, fn)
}

// Cancel stops the task synchronously. It returns true only for the call that
// actually cancelled a live task; repeated calls are no-ops.
func (h *Handle) Cancel() bool {
	if !h.Live() {
		return false
	}
	h.cancelled = true
	hooks := h.onCancel
	h.onCancel = nil
	for _, fn := range hooks {
		fn()
	}
	return true
}

// Scheduler steps live tasks in start order.
type Scheduler struct {
	now   time.Duration
	tasks []*Handle
	log   *slog.Logger
}

// New returns a scheduler whose clock starts at zero.
func New(l *slog.Logger) *Scheduler {
	if l == nil {
		l = vlog.Discard()
	}
	return &Scheduler{log: l}
}

// Now returns the virtual clock.
func (s *Scheduler) Now() time.Duration { return s.now }

// Start registers task and steps it once immediately at the current time.
func (s *Scheduler) Start(name string, task Task) *Handle {
	h := &Handle{name: name, task: task}
	if task == nil || task.Step(s.now) {
		h.done = true
		return h
	}
	s.tasks = append(s.tasks, h)
	return h
}

// Advance moves the clock by dt and steps every live task once. Tasks started
// while stepping are not stepped again until the next Advance.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt > 0 {
		s.now += dt
	}
	batch := s.tasks
	s.tasks = nil
	for _, h := range batch {
		if !h.Live() {
			continue
		}
		if h.task.Step(s.now) && !h.cancelled {
			h.done = true
			s.log.Debug("task finished", slog.String("task", h.name), slog.Duration("at", s.now))
		}
	}
	kept := batch[:0]
	for _, h := range batch {
		if h.Live() {
			kept = append(kept, h)
		}
	}
	for _, h := range s.tasks {
		if h.Live() {
			kept = append(kept, h)
		}
	}
	s.tasks = kept
}

// Pending returns the number of live tasks.
func (s *Scheduler) Pending() int {
	n := 0
	for _, h := range s.tasks {
		if h.Live() {
			n++
		}
	}
	return n
}

// RunFor advances the clock by total in steps of at most step.
func (s *Scheduler) RunFor(total, step time.Duration) {
	if step <= 0 {
		step = total
	}
	for total > 0 {
		dt := step
		if dt > total {
			dt = total
		}
		s.Advance(dt)
		total -= dt
	}
}

// Wait finishes once d has elapsed since its first step.
func Wait(d time.Duration) Task {
	started := false
	var at time.Duration
	return Func(func(now time.Duration) bool {
		if !started {
			started, at = true, now
		}
		return now-at >= d
	})
}

// WaitUntil finishes on the first step where pred returns true.
func WaitUntil(pred func() bool) Task {
	return Func(func(time.Duration) bool { return pred() })
}

// Call runs fn once and finishes.
func Call(fn func()) Task {
	return Func(func(time.Duration) bool {
		fn()
		return true
	})
}

// Sequence runs tasks one after another. A finished task hands over to the next
// one within the same step, so zero-length tasks do not cost a tick.
func Sequence(tasks ...Task) Task {
	i := 0
	return Func(func(now time.Duration) bool {
		for i < len(tasks) {
			if !tasks[i].Step(now) {
				return false
			}
			i++
		}
		return true
	})
}
