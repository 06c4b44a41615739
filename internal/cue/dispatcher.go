/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cue turns a dialogue entry's media fields into display and audio
// requests. It runs once per entry before the text reveal starts.
package cue

import (
	"log/slog"
	"time"

	"vnplayer/internal/audio"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/sched"
	"vnplayer/internal/transition"
)

// Resolver finds assets by category and key. Any error counts as a miss.
type Resolver interface {
	Resolve(cat domain.Category, key string) (*domain.Asset, error)
}

// Policy holds fade durations and the voice sync switch.
type Policy struct {
	BackgroundFade  time.Duration
	CharacterFade   time.Duration
	EnableVoiceSync bool
}

// DefaultPolicy returns the stock durations.
func DefaultPolicy() Policy {
	return Policy{BackgroundFade: time.Second, CharacterFade: 500 * time.Millisecond, EnableVoiceSync: true}
}

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	Scheduler *sched.Scheduler
	Animator  *transition.Animator
	Resolver  Resolver
	Music     *audio.MusicDeck
	Voice     audio.Channel
	SFX       audio.Channel
	Logger    *slog.Logger
}

// Result is what the orchestrator needs back from a dispatch.
type Result struct {
	MusicMemo string
	// Voice is the resolved clip, nil when the entry has none or it was not found.
	Voice *domain.Asset
	// VoiceSync asks the reveal timer to pace text against Voice and play it.
	VoiceSync bool
	// VoiceStarted is set when the dispatcher already started Voice itself.
	VoiceStarted bool
}

// Dispatcher applies entry cues. It remembers the sprite on screen and the
// task that lifts the music duck after a directly played voice line.
type Dispatcher struct {
	d      Deps
	p      Policy
	log    *slog.Logger
	sprite string
	watch  *sched.Handle
}

// New returns a Dispatcher.
func New(d Deps, p Policy) *Dispatcher {
	return &Dispatcher{d: d, p: p, log: vlog.OrDiscard(d.Logger)}
}

// Sprite returns the key of the character sprite currently shown.
func (x *Dispatcher) Sprite() string { return x.sprite }

// Reset forgets the shown sprite. Called on chapter change.
func (x *Dispatcher) Reset() { x.sprite = "" }

// Dispatch applies e's cues in fixed order: background, character, music,
// sound effect, voice. memo is the music key last applied; the returned
// Result carries its new value. Missing assets skip their own cue only.
func (x *Dispatcher) Dispatch(e domain.DialogueEntry, memo string) Result {
	res := Result{MusicMemo: memo}

	if e.BackgroundImage != "" {
		if a, ok := x.resolve(domain.CategoryBackground, e.BackgroundImage); ok {
			x.d.Animator.Swap(display.Background, display.BackgroundOverlay, a, x.p.BackgroundFade, nil)
		}
	}

	switch {
	case e.HideCharacter:
		x.HideCharacter()
	case e.CharacterSprite != "" && e.CharacterSprite != x.sprite:
		if a, ok := x.resolve(domain.CategoryCharacter, e.CharacterSprite); ok {
			x.showCharacter(a)
		}
	}

	switch {
	case e.BackgroundMusic == memo:
	case e.BackgroundMusic != "":
		if a, ok := x.resolve(domain.CategoryMusic, e.BackgroundMusic); ok {
			x.d.Music.CrossfadeTo(a)
			res.MusicMemo = e.BackgroundMusic
		}
	default:
		x.d.Music.FadeOut()
		res.MusicMemo = ""
	}

	if e.SoundEffect != "" {
		if a, ok := x.resolve(domain.CategorySFX, e.SoundEffect); ok {
			x.d.SFX.Play(a, false)
		}
	}

	voice := e.VoiceClip
	if voice == nil && e.VoiceClipName != "" {
		voice, _ = x.resolve(domain.CategoryVoice, e.VoiceClipName)
	}
	if voice == nil {
		return res
	}
	res.Voice = voice
	x.cancelWatch()
	x.d.Voice.Stop()
	if e.SyncVoiceWithText && x.p.EnableVoiceSync {
		res.VoiceSync = true
		return res
	}
	x.d.Voice.Play(voice, false)
	x.d.Music.Duck()
	x.watch = x.d.Scheduler.Start("voice-duck", sched.Sequence(
		sched.WaitUntil(func() bool { return !x.d.Voice.IsPlaying() }),
		sched.Call(func() { x.d.Music.Restore(false) }),
	))
	res.VoiceStarted = true
	return res
}

// StopVoice stops a directly played voice line and lifts the duck at once.
func (x *Dispatcher) StopVoice() {
	x.cancelWatch()
	if x.d.Voice.IsPlaying() {
		x.d.Voice.Stop()
	}
	x.d.Music.Restore(true)
}

// HideCharacter fades the character layer out and forgets the sprite.
func (x *Dispatcher) HideCharacter() {
	x.sprite = ""
	if x.d.Animator.Busy(x.d.Animator.LayerAlpha(display.CharacterOverlay)) {
		x.d.Animator.SetAlpha(display.CharacterOverlay, 0)
		x.d.Animator.SetImage(display.CharacterOverlay, nil)
	}
	x.d.Animator.FadeLayer(display.Character, 0, x.p.CharacterFade, nil)
}

func (x *Dispatcher) showCharacter(a *domain.Asset) {
	if x.sprite == "" {
		x.d.Animator.SetImage(display.Character, a)
		x.d.Animator.FadeLayer(display.Character, 1, x.p.CharacterFade, nil)
	} else {
		x.d.Animator.Swap(display.Character, display.CharacterOverlay, a, x.p.CharacterFade, nil)
	}
	x.sprite = a.Key
}

func (x *Dispatcher) cancelWatch() {
	if x.watch != nil {
		x.watch.Cancel()
		x.watch = nil
	}
}

func (x *Dispatcher) resolve(cat domain.Category, key string) (*domain.Asset, bool) {
	a, err := x.d.Resolver.Resolve(cat, key)
	if err != nil || a == nil {
		x.log.Warn("asset not found, cue skipped",
			slog.String("category", string(cat)), slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	return a, true
}
