/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import (
	"log/slog"

	"vnplayer/internal/audio"
	"vnplayer/internal/cue"
	"vnplayer/internal/display"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/reveal"
	"vnplayer/internal/sched"
	"vnplayer/internal/transition"
)

// Tuning groups the policies of every engine component.
type Tuning struct {
	Session Policy
	Reveal  reveal.Policy
	Cue     cue.Policy
	Deck    audio.DeckPolicy
}

// DefaultTuning returns the stock settings.
func DefaultTuning() Tuning {
	return Tuning{
		Session: DefaultPolicy(),
		Reveal:  reveal.DefaultPolicy(),
		Cue:     cue.DefaultPolicy(),
		Deck:    audio.DefaultDeckPolicy(),
	}
}

// EngineConfig describes a full engine. Channels default to simulated ones on
// the engine clock; Scheduler defaults to a fresh one.
type EngineConfig struct {
	Display   display.Display
	Resolver  cue.Resolver
	Prompter  NamePrompter
	Observer  Observer
	Logger    *slog.Logger
	Tuning    Tuning
	Scheduler *sched.Scheduler
	Music     audio.Channel
	Voice     audio.Channel
	SFX       audio.Channel
}

// Engine is a wired session with its components exposed for shells and tests.
type Engine struct {
	Scheduler  *sched.Scheduler
	Animator   *transition.Animator
	Deck       *audio.MusicDeck
	Music      audio.Channel
	Voice      audio.Channel
	SFX        audio.Channel
	Dispatcher *cue.Dispatcher
	Timer      *reveal.Timer
	Session    *Session
}

// NewEngine wires the scheduler, animator, audio, dispatcher, timer and session.
func NewEngine(cfg EngineConfig) *Engine {
	l := vlog.OrDiscard(cfg.Logger)
	if cfg.Tuning == (Tuning{}) {
		cfg.Tuning = DefaultTuning()
	}
	e := &Engine{Scheduler: cfg.Scheduler, Music: cfg.Music, Voice: cfg.Voice, SFX: cfg.SFX}
	if e.Scheduler == nil {
		e.Scheduler = sched.New(l.With(slog.String("component", "sched")))
	}
	for _, ch := range []struct {
		dst  *audio.Channel
		name string
	}{{&e.Music, "music"}, {&e.Voice, "voice"}, {&e.SFX, "sfx"}} {
		if *ch.dst == nil {
			*ch.dst = audio.NewSimChannel(ch.name, e.Scheduler.Now, l.With(slog.String("component", "audio")))
		}
	}
	e.Animator = transition.New(e.Scheduler, cfg.Display, l.With(slog.String("component", "transition")))
	e.Deck = audio.NewMusicDeck(e.Music, e.Animator, cfg.Tuning.Deck, l.With(slog.String("component", "music")))
	e.Dispatcher = cue.New(cue.Deps{
		Scheduler: e.Scheduler,
		Animator:  e.Animator,
		Resolver:  cfg.Resolver,
		Music:     e.Deck,
		Voice:     e.Voice,
		SFX:       e.SFX,
		Logger:    l.With(slog.String("component", "cue")),
	}, cfg.Tuning.Cue)
	e.Timer = reveal.NewTimer(e.Scheduler, cfg.Display, e.Voice, e.Deck, cfg.Tuning.Reveal, l.With(slog.String("component", "reveal")))
	e.Session = New(Deps{
		Scheduler:  e.Scheduler,
		Display:    cfg.Display,
		Dispatcher: e.Dispatcher,
		Timer:      e.Timer,
		Animator:   e.Animator,
		Prompter:   cfg.Prompter,
		Observer:   cfg.Observer,
		Logger:     l.With(slog.String("component", "playback")),
	}, cfg.Tuning.Session)
	return e
}
