/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"log/slog"
	"time"

	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/transition"
)

// DeckPolicy configures music volume and envelopes.
type DeckPolicy struct {
	Volume      float64       // base volume
	Crossfade   time.Duration // full track change, half out and half in
	FadeOut     time.Duration
	DuckRatio   float64 // fraction of volume kept while ducked
	DuckRamp    time.Duration
	RestoreRamp time.Duration
}

// DefaultDeckPolicy matches the stock game settings.
func DefaultDeckPolicy() DeckPolicy {
	return DeckPolicy{
		Volume:      0.5,
		Crossfade:   time.Second,
		FadeOut:     time.Second,
		DuckRatio:   0.3,
		DuckRamp:    200 * time.Millisecond,
		RestoreRamp: 300 * time.Millisecond,
	}
}

// MusicDeck drives the music channel. The channel volume is always
// base * fade * duck; fade and duck animate independently so a track change and
// a voice duck can overlap.
type MusicDeck struct {
	ch      Channel
	anim    *transition.Animator
	p       DeckPolicy
	log     *slog.Logger
	fade    float64
	duck    float64
	current string
	ducked  bool

	fadeT transition.Target
	duckT transition.Target
}

// NewMusicDeck wires a deck to ch. Animations run on anim's scheduler.
func NewMusicDeck(ch Channel, anim *transition.Animator, p DeckPolicy, l *slog.Logger) *MusicDeck {
	m := &MusicDeck{ch: ch, anim: anim, p: p, log: vlog.OrDiscard(l), fade: 1, duck: 1}
	m.fadeT = transition.Prop("music:fade", func() float64 { return m.fade }, func(v float64) { m.fade = v; m.apply() })
	m.duckT = transition.Prop("music:duck", func() float64 { return m.duck }, func(v float64) { m.duck = v; m.apply() })
	m.apply()
	return m
}

func (m *MusicDeck) apply() { m.ch.SetVolume(m.p.Volume * m.fade * m.duck) }

// Current returns the key of the track the deck is on or heading to.
func (m *MusicDeck) Current() string { return m.current }

// Ducked reports whether a duck is in effect.
func (m *MusicDeck) Ducked() bool { return m.ducked }

// Channel returns the underlying channel.
func (m *MusicDeck) Channel() Channel { return m.ch }

// CrossfadeTo changes to clip: the playing track fades out, then clip starts
// looping and fades in. With nothing playing, clip fades in straight away.
func (m *MusicDeck) CrossfadeTo(clip *domain.Asset) {
	if clip == nil {
		return
	}
	m.current = clip.Key
	half := m.p.Crossfade / 2
	startNew := func() {
		m.ch.Play(clip, true)
		m.anim.Fade(m.fadeT, 1, half, nil)
	}
	m.log.Info("music change", slog.String("track", clip.Key))
	if !m.ch.IsPlaying() {
		m.fade = 0
		m.apply()
		startNew()
		return
	}
	m.anim.Fade(m.fadeT, 0, half, startNew)
}

// FadeOut fades the current track to silence and stops it.
func (m *MusicDeck) FadeOut() {
	if m.current == "" && !m.ch.IsPlaying() {
		return
	}
	m.log.Info("music fade out", slog.String("track", m.current))
	m.current = ""
	m.anim.Fade(m.fadeT, 0, m.p.FadeOut, m.ch.Stop)
}

// Duck lowers the music to DuckRatio over DuckRamp.
func (m *MusicDeck) Duck() {
	if m.ducked {
		return
	}
	m.ducked = true
	m.anim.Fade(m.duckT, m.p.DuckRatio, m.p.DuckRamp, nil)
}

// Restore lifts a duck, at once or over RestoreRamp.
func (m *MusicDeck) Restore(immediate bool) {
	if !m.ducked && !m.anim.Busy(m.duckT) {
		return
	}
	m.ducked = false
	d := m.p.RestoreRamp
	if immediate {
		d = 0
	}
	m.anim.Fade(m.duckT, 1, d, nil)
}

// Stop silences music at once and forgets the current track.
func (m *MusicDeck) Stop() {
	m.current = ""
	m.anim.Fade(m.fadeT, 1, 0, nil)
	m.ch.Stop()
}
