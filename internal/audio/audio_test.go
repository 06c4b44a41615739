/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"math"
	"testing"
	"time"

	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	"vnplayer/internal/sched"
	"vnplayer/internal/transition"
)

const ms = time.Millisecond

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSimChannelClipLifetime(t *testing.T) {
	s := sched.New(nil)
	ch := NewSimChannel("voice", s.Now, nil)
	ch.Play(&domain.Asset{Key: "v1", Duration: 300 * ms}, false)
	if !ch.IsPlaying() {
		t.Fatalf("clip should play right after Play")
	}
	s.Advance(299 * ms)
	if !ch.IsPlaying() {
		t.Fatalf("clip ended early")
	}
	s.Advance(ms)
	if ch.IsPlaying() {
		t.Fatalf("clip should end after its duration")
	}
	ch.Play(&domain.Asset{Key: "loop", Duration: 10 * ms}, true)
	s.Advance(time.Second)
	if !ch.IsPlaying() {
		t.Fatalf("looping clip stopped")
	}
	ch.Stop()
	ch.Stop()
	if ch.IsPlaying() || ch.Stops() != 1 {
		t.Fatalf("playing=%v stops=%d", ch.IsPlaying(), ch.Stops())
	}
	ch.Play(nil, false)
	if got := ch.Plays(); len(got) != 2 || got[1] != "loop" {
		t.Fatalf("plays = %v", got)
	}
}

func TestSimChannelVolumeClamped(t *testing.T) {
	ch := NewSimChannel("music", func() time.Duration { return 0 }, nil)
	ch.SetVolume(1.7)
	if ch.Volume() != 1 {
		t.Fatalf("volume = %v", ch.Volume())
	}
	ch.SetVolume(-1)
	if ch.Volume() != 0 {
		t.Fatalf("volume = %v", ch.Volume())
	}
}

func newDeck() (*MusicDeck, *SimChannel, *sched.Scheduler) {
	s := sched.New(nil)
	anim := transition.New(s, display.NewRecorder(false), nil)
	ch := NewSimChannel("music", s.Now, nil)
	p := DeckPolicy{Volume: 1, Crossfade: 200 * ms, FadeOut: 100 * ms, DuckRatio: 0.3, DuckRamp: 100 * ms, RestoreRamp: 100 * ms}
	return NewMusicDeck(ch, anim, p, nil), ch, s
}

func TestCrossfadeFromSilence(t *testing.T) {
	d, ch, s := newDeck()
	d.CrossfadeTo(&domain.Asset{Key: "theme"})
	if ch.Clip() != "theme" || ch.Volume() != 0 {
		t.Fatalf("clip=%q volume=%v", ch.Clip(), ch.Volume())
	}
	s.Advance(100 * ms)
	if !near(ch.Volume(), 1) || d.Current() != "theme" {
		t.Fatalf("volume=%v current=%q", ch.Volume(), d.Current())
	}
}

func TestCrossfadeBetweenTracks(t *testing.T) {
	d, ch, s := newDeck()
	d.CrossfadeTo(&domain.Asset{Key: "a"})
	s.Advance(100 * ms)
	d.CrossfadeTo(&domain.Asset{Key: "b"})
	if ch.Clip() != "a" {
		t.Fatalf("old track should keep playing while fading out")
	}
	s.Advance(50 * ms)
	if !near(ch.Volume(), 0.5) {
		t.Fatalf("fade-out midpoint volume = %v", ch.Volume())
	}
	s.Advance(50 * ms)
	if ch.Clip() != "b" {
		t.Fatalf("new track not started, clip=%q", ch.Clip())
	}
	s.Advance(100 * ms)
	if !near(ch.Volume(), 1) {
		t.Fatalf("volume after fade-in = %v", ch.Volume())
	}
}

func TestFadeOutStopsTrack(t *testing.T) {
	d, ch, s := newDeck()
	d.CrossfadeTo(&domain.Asset{Key: "a"})
	s.Advance(100 * ms)
	d.FadeOut()
	if d.Current() != "" {
		t.Fatalf("current should clear at once")
	}
	s.Advance(100 * ms)
	if ch.IsPlaying() || ch.Stops() != 1 {
		t.Fatalf("track should stop after fade out")
	}
}

func TestDuckComposesWithFade(t *testing.T) {
	d, ch, s := newDeck()
	d.CrossfadeTo(&domain.Asset{Key: "a"})
	s.Advance(100 * ms)
	d.Duck()
	s.Advance(100 * ms)
	if !d.Ducked() || !near(ch.Volume(), 0.3) {
		t.Fatalf("ducked=%v volume=%v", d.Ducked(), ch.Volume())
	}
	d.Restore(false)
	s.Advance(50 * ms)
	if !near(ch.Volume(), 0.65) {
		t.Fatalf("restore midpoint = %v", ch.Volume())
	}
	d.Duck()
	d.Restore(true)
	if d.Ducked() || !near(ch.Volume(), 1) {
		t.Fatalf("immediate restore: ducked=%v volume=%v", d.Ducked(), ch.Volume())
	}
}
