/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reveal

import (
	"log/slog"
	"time"

	"vnplayer/internal/audio"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/sched"
)

// Ducker lowers and restores background music around a voice line.
type Ducker interface {
	Duck()
	Restore(immediate bool)
}

// Request describes one reveal. Sync only takes effect with a Voice.
type Request struct {
	Text  string
	Voice *domain.Asset
	Sync  bool
}

// Timer runs at most one reveal at a time.
type Timer struct {
	s     *sched.Scheduler
	d     display.Display
	voice audio.Channel
	duck  Ducker
	p     Policy
	log   *slog.Logger
	h     *sched.Handle
}

// NewTimer returns a Timer. duck may be nil.
func NewTimer(s *sched.Scheduler, d display.Display, voice audio.Channel, duck Ducker, p Policy, l *slog.Logger) *Timer {
	return &Timer{s: s, d: d, voice: voice, duck: duck, p: p, log: vlog.OrDiscard(l)}
}

// Policy returns the pacing in use.
func (t *Timer) Policy() Policy { return t.p }

// Active reports whether a reveal is running.
func (t *Timer) Active() bool { return t.h.Live() }

// Start begins revealing req.Text, cancelling any running reveal. onDone runs
// when the reveal completes on its own, which for empty text is before Start
// returns. With Sync and a Voice the timer ducks music, waits PreRoll, starts
// the voice and paces text against its length, then holds until the voice and
// TailPad are over. Without a usable voice it falls back to fixed speed.
func (t *Timer) Start(req Request, onDone func()) {
	t.Cancel()
	sync := req.Sync && req.Voice != nil
	delay := t.p.Speed
	if sync {
		delay = CharDelay(req.Voice.Duration, len([]rune(req.Text)), t.p)
		t.log.Debug("voice sync", slog.String("voice", req.Voice.Key),
			slog.Duration("length", req.Voice.Duration), slog.Duration("char_delay", delay))
	}
	sch := NewSchedule(req.Text, delay)

	start := t.s.Now()
	voiceAt := time.Duration(-1)
	ducked := false
	shown := -1
	t.d.SetText("")

	finish := func() {
		if ducked {
			t.duck.Restore(false)
		}
		if onDone != nil {
			onDone()
		}
	}
	if sync && t.duck != nil {
		t.duck.Duck()
		ducked = true
	}

	var h *sched.Handle
	h = t.s.Start("reveal", sched.Func(func(now time.Duration) bool {
		elapsed := now - start
		if sync {
			if voiceAt < 0 {
				if elapsed < t.p.PreRoll {
					return false
				}
				t.voice.Stop()
				t.voice.Play(req.Voice, false)
				voiceAt = now
			}
			elapsed = now - voiceAt
		}
		if n := sch.Visible(elapsed); n != shown {
			shown = n
			t.d.SetText(sch.Prefix(n))
		}
		if elapsed < sch.Total() {
			return false
		}
		if sync && elapsed < req.Voice.Duration+t.p.TailPad {
			return false
		}
		if h != nil && t.h == h {
			t.h = nil
		}
		finish()
		return true
	}))
	if !h.Live() {
		return
	}
	h.OnCancel(func() {
		t.voice.Stop()
		if ducked {
			t.duck.Restore(true)
		}
	})
	t.h = h
}

// Cancel stops the running reveal and its voice at once. It reports whether a
// reveal was running; calling it again is a no-op.
func (t *Timer) Cancel() bool {
	h := t.h
	t.h = nil
	if !h.Cancel() {
		return false
	}
	t.log.Debug("reveal cancelled")
	return true
}
