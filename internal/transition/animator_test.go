/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package transition

import (
	"math"
	"testing"
	"time"

	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	"vnplayer/internal/sched"
)

const ms = time.Millisecond

func newAnimator() (*Animator, *sched.Scheduler, *display.Recorder) {
	s := sched.New(nil)
	rec := display.NewRecorder(true)
	return New(s, rec, nil), s, rec
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestFadeIsLinearInElapsedTime(t *testing.T) {
	a, s, rec := newAnimator()
	done := false
	a.FadeLayer(display.DialogueBox, 1, 200*ms, func() { done = true })
	s.Advance(50 * ms)
	if !near(a.Alpha(display.DialogueBox), 0.25) {
		t.Fatalf("alpha at 50ms = %v", a.Alpha(display.DialogueBox))
	}
	// uneven frame lengths still land on the same curve
	s.Advance(7 * ms)
	s.Advance(93 * ms)
	if !near(rec.Alpha(display.DialogueBox), 0.75) {
		t.Fatalf("alpha at 150ms = %v", rec.Alpha(display.DialogueBox))
	}
	s.Advance(60 * ms)
	if !done || a.Alpha(display.DialogueBox) != 1 {
		t.Fatalf("done=%v alpha=%v", done, a.Alpha(display.DialogueBox))
	}
	if a.Busy(a.LayerAlpha(display.DialogueBox)) {
		t.Fatalf("finished fade still busy")
	}
}

func TestZeroDurationAppliesInstantly(t *testing.T) {
	a, _, _ := newAnimator()
	called := false
	h := a.FadeLayer(display.Character, 1, 0, func() { called = true })
	if !h.Done() || !called || a.Alpha(display.Character) != 1 {
		t.Fatalf("instant fade: done=%v called=%v alpha=%v", h.Done(), called, a.Alpha(display.Character))
	}
}

func TestSupersedeStartsFromCurrentValue(t *testing.T) {
	a, s, _ := newAnimator()
	firstThen := false
	first := a.FadeLayer(display.Character, 1, 100*ms, func() { firstThen = true })
	s.Advance(60 * ms)
	if !near(a.Alpha(display.Character), 0.6) {
		t.Fatalf("alpha = %v", a.Alpha(display.Character))
	}
	a.FadeLayer(display.Character, 0, 100*ms, nil)
	if !first.Cancelled() {
		t.Fatalf("first fade should be cancelled")
	}
	if !near(a.Alpha(display.Character), 0.6) {
		t.Fatalf("supersede jumped to %v", a.Alpha(display.Character))
	}
	// remaining distance 0.6 over a 100ms fade takes 60ms
	s.Advance(30 * ms)
	if !near(a.Alpha(display.Character), 0.3) {
		t.Fatalf("alpha midway = %v", a.Alpha(display.Character))
	}
	s.Advance(30 * ms)
	if a.Alpha(display.Character) != 0 {
		t.Fatalf("alpha end = %v", a.Alpha(display.Character))
	}
	if firstThen {
		t.Fatalf("superseded fade must not run its continuation")
	}
}

func TestIndependentTargetsDoNotInterfere(t *testing.T) {
	a, s, _ := newAnimator()
	a.FadeLayer(display.Background, 1, 100*ms, nil)
	a.FadeLayer(display.Character, 1, 200*ms, nil)
	s.Advance(100 * ms)
	if a.Alpha(display.Background) != 1 || !near(a.Alpha(display.Character), 0.5) {
		t.Fatalf("bg=%v char=%v", a.Alpha(display.Background), a.Alpha(display.Character))
	}
}

func TestSwapViaOverlay(t *testing.T) {
	a, s, rec := newAnimator()
	a.SetAlpha(display.Background, 1)
	rec.SetLayerImage(display.Background, &domain.Asset{Key: "old"})
	swapped := false
	a.Swap(display.Background, display.BackgroundOverlay, &domain.Asset{Key: "new"}, 100*ms, func() { swapped = true })

	if rec.Image(display.BackgroundOverlay) != "new" || rec.Image(display.Background) != "old" {
		t.Fatalf("overlay should be preloaded: %+v", rec.Snapshot())
	}
	s.Advance(50 * ms)
	if !near(rec.Alpha(display.BackgroundOverlay), 0.5) || rec.Alpha(display.Background) != 1 {
		t.Fatalf("mid swap: %+v", rec.Snapshot())
	}
	s.Advance(50 * ms)
	if !swapped {
		t.Fatalf("swap continuation not called")
	}
	if rec.Image(display.Background) != "new" || rec.Alpha(display.BackgroundOverlay) != 0 || rec.Image(display.BackgroundOverlay) != "" {
		t.Fatalf("after swap: %+v", rec.Snapshot())
	}
}

func TestSwapSupersedeKeepsOverlayAlpha(t *testing.T) {
	a, s, rec := newAnimator()
	a.Swap(display.Background, display.BackgroundOverlay, &domain.Asset{Key: "b1"}, 100*ms, nil)
	s.Advance(40 * ms)
	a.Swap(display.Background, display.BackgroundOverlay, &domain.Asset{Key: "b2"}, 100*ms, nil)
	if !near(rec.Alpha(display.BackgroundOverlay), 0.4) {
		t.Fatalf("overlay reset on supersede: %v", rec.Alpha(display.BackgroundOverlay))
	}
	s.Advance(60 * ms)
	if rec.Image(display.Background) != "b2" {
		t.Fatalf("base = %q, want b2", rec.Image(display.Background))
	}
}

func TestPropTarget(t *testing.T) {
	a, s, _ := newAnimator()
	v := 1.0
	p := Prop("music:duck", func() float64 { return v }, func(x float64) { v = x })
	a.Fade(p, 0.3, 100*ms, nil)
	s.Advance(100 * ms)
	if !near(v, 0.3) {
		t.Fatalf("prop = %v", v)
	}
}
