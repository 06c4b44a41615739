/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	vlog "vnplayer/internal/log"
)

// Loop drives a Scheduler from wall-clock ticks. Run's goroutine is the only one
// that touches the scheduler; use Post from anywhere else.
type Loop struct {
	s    *Scheduler
	tick time.Duration
	log  *slog.Logger

	mu     sync.Mutex
	posted []func()
	wake   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewLoop returns a loop ticking every tick (16ms when tick <= 0).
func NewLoop(s *Scheduler, tick time.Duration) *Loop {
	if tick <= 0 {
		tick = 16 * time.Millisecond
	}
	return &Loop{
		s:    s,
		tick: tick,
		log:  vlog.WithComponent("sched"),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Scheduler returns the driven scheduler.
func (l *Loop) Scheduler() *Scheduler { return l.s }

// Post queues fn to run on the loop goroutine before the next scheduler step.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop goroutine and waits for it, or for ctx to end.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return context.Canceled
	}
}

// Stop ends Run. Safe to call more than once.
func (l *Loop) Stop() { l.once.Do(func() { close(l.stop) }) }

// Run ticks until ctx is done or Stop is called. Posted work runs as soon as it
// arrives; the clock advances by the real time elapsed between ticks.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.tick)
	defer t.Stop()
	last := time.Now()
	l.log.Debug("loop started", slog.Duration("tick", l.tick))
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case <-l.stop:
			l.drain()
			return nil
		case <-l.wake:
			l.drain()
		case now := <-t.C:
			l.drain()
			l.s.Advance(now.Sub(last))
			last = now
		}
	}
}

func (l *Loop) drain() {
	l.mu.Lock()
	fns := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
