/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package playback is the dialogue orchestrator. A Session walks a chapter's
// entries, dispatches their cues, runs the text reveal and moves between
// chapters. All methods must be called from the goroutine that steps the
// session's scheduler.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vnplayer/internal/cue"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/reveal"
	"vnplayer/internal/sched"
	"vnplayer/internal/transition"
)

var (
	// ErrNoChapter is returned by Start without a chapter.
	ErrNoChapter = errors.New("playback: no chapter assigned")
	// ErrInvalidName is returned by SetPlayerName for names that are too short.
	ErrInvalidName = errors.New("playback: invalid player name")
)

// Deps are the collaborators a Session drives. Prompter and Observer are optional.
type Deps struct {
	Scheduler  *sched.Scheduler
	Display    display.Display
	Dispatcher *cue.Dispatcher
	Timer      *reveal.Timer
	Animator   *transition.Animator
	Prompter   NamePrompter
	Observer   Observer
	Logger     *slog.Logger
}

// Policy configures the orchestrator.
type Policy struct {
	EndDwell            time.Duration
	DialogueBoxFade     time.Duration
	AutoShowDialogueBox bool
	ChapterEndFormat    string // fmt verb receives the chapter title
	DefaultName         string
	MinNameLen          int
	MaxNameLen          int
}

// DefaultPolicy returns the stock orchestrator settings.
func DefaultPolicy() Policy {
	return Policy{
		EndDwell:            3 * time.Second,
		DialogueBoxFade:     500 * time.Millisecond,
		AutoShowDialogueBox: true,
		ChapterEndFormat:    "%s - completed",
		DefaultName:         "Player",
		MinNameLen:          2,
		MaxNameLen:          20,
	}
}

// Session is one playback run.
type Session struct {
	d   Deps
	p   Policy
	log *slog.Logger
	obs Observer

	state State
	cur   Cursor
	name  string
	text  string // full substituted text of the shown entry
	gen   uint64 // bumped whenever the shown entry changes; stale callbacks compare it
	end   *sched.Handle
}

// New returns an idle session.
func New(d Deps, p Policy) *Session {
	if p.ChapterEndFormat == "" {
		p.ChapterEndFormat = DefaultPolicy().ChapterEndFormat
	}
	s := &Session{d: d, p: p, log: vlog.OrDiscard(d.Logger), obs: d.Observer, name: p.DefaultName}
	if s.obs == nil {
		s.obs = NopObserver{}
	}
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Cursor returns a copy of the playback position.
func (s *Session) Cursor() Cursor { return s.cur }

// PlayerName returns the name substituted into text.
func (s *Session) PlayerName() string { return s.name }

// Text returns the full substituted text of the entry on screen.
func (s *Session) Text() string { return s.text }

// SetPlayerName validates and applies name. A shown speaker label is refreshed.
func (s *Session) SetPlayerName(name string) error {
	n, ok := NormalizeName(name, s.p.MinNameLen, s.p.MaxNameLen)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	s.name = n
	if s.state == Revealing || s.state == AwaitingAdvance {
		if e, ok := s.cur.Chapter.Entry(s.cur.Index); ok {
			s.d.Display.SetSpeakerName(Substitute(e.SpeakerName, s.name))
		}
	}
	return nil
}

// SetDialogueBoxVisible fades the dialogue box in or out.
func (s *Session) SetDialogueBoxVisible(visible bool) {
	to := 0.0
	if visible {
		to = 1
	}
	s.d.Animator.FadeLayer(display.DialogueBox, to, s.p.DialogueBoxFade, nil)
}

// Start begins playback at entry 0 of ch. A running session is reset first.
func (s *Session) Start(ch *domain.Chapter) error {
	if ch == nil {
		return ErrNoChapter
	}
	s.halt()
	s.cur = Cursor{Chapter: ch}
	s.d.Dispatcher.Reset()
	s.beginChapter()
	return nil
}

// Advance is the single player input. While revealing it completes the text
// at once; while waiting it moves to the next entry. Otherwise it does nothing.
func (s *Session) Advance() {
	switch s.state {
	case Revealing:
		s.skip()
	case AwaitingAdvance:
		s.cur.Index++
		s.show()
	default:
		s.log.Debug("advance ignored", slog.String("state", s.state.String()))
	}
}

// Close stops all pending work and finishes the session.
func (s *Session) Close() {
	if s.state == Finished || s.state == Idle {
		return
	}
	s.halt()
	s.setState(Finished)
	s.obs.SessionFinished()
}

func (s *Session) halt() {
	s.gen++
	s.d.Timer.Cancel()
	s.d.Dispatcher.StopVoice()
	if s.end != nil {
		s.end.Cancel()
		s.end = nil
	}
	s.cur.Revealing = false
}

func (s *Session) setState(to State) {
	if to == s.state {
		return
	}
	from := s.state
	s.state = to
	s.log.Debug("state", slog.String("from", from.String()), slog.String("to", to.String()))
	s.obs.StateChanged(from, to)
}

func (s *Session) beginChapter() {
	ch := s.cur.Chapter
	s.log.Info("chapter started", slog.String("chapter", ch.ID), slog.String("title", ch.Title),
		slog.Int("number", ch.Number), slog.Int("entries", ch.Len()))
	s.obs.ChapterStarted(ch)
	s.show()
}

func (s *Session) show() {
	ch := s.cur.Chapter
	e, ok := ch.Entry(s.cur.Index)
	if !ok {
		s.endChapter()
		return
	}
	if IsNameInput(e.Text) {
		s.requestName()
		return
	}
	s.gen++
	gen := s.gen

	res := s.d.Dispatcher.Dispatch(e, s.cur.MusicMemo)
	s.cur.MusicMemo = res.MusicMemo

	// The reveal works on runes; invalid bytes must read the same whether the
	// line finishes or is skipped.
	speaker := strings.ToValidUTF8(Substitute(e.SpeakerName, s.name), "\uFFFD")
	s.text = strings.ToValidUTF8(Substitute(e.Text, s.name), "\uFFFD")
	s.d.Display.SetSpeakerName(speaker)
	if s.p.AutoShowDialogueBox && s.d.Animator.Alpha(display.DialogueBox) < 0.5 {
		s.SetDialogueBoxVisible(true)
	}

	s.cur.Revealing = true
	s.setState(Revealing)
	ctx := vlog.WithPosition(context.Background(), ch.ID, s.cur.Index)
	s.log.DebugContext(ctx, "entry shown", slog.String("speaker", speaker), slog.Bool("voice", res.Voice != nil),
		slog.Bool("sync", res.VoiceSync))
	s.obs.EntryShown(ch, s.cur.Index, speaker, s.text)

	req := reveal.Request{Text: s.text}
	if res.VoiceSync {
		req.Voice, req.Sync = res.Voice, true
	}
	s.d.Timer.Start(req, func() {
		if gen != s.gen || s.state != Revealing {
			return
		}
		s.cur.Revealing = false
		s.setState(AwaitingAdvance)
	})
}

func (s *Session) skip() {
	s.gen++
	s.d.Timer.Cancel()
	s.d.Dispatcher.StopVoice()
	s.d.Display.SetText(s.text)
	s.cur.Revealing = false
	s.setState(AwaitingAdvance)
}

func (s *Session) requestName() {
	s.gen++
	gen := s.gen
	s.cur.Revealing = false
	s.setState(AwaitingName)
	if s.d.Prompter == nil {
		s.log.Warn("name input requested without a prompter, keeping current name", slog.String("name", s.name))
		s.cur.Index++
		s.show()
		return
	}
	var confirm func(string)
	confirm = func(raw string) {
		if gen != s.gen || s.state != AwaitingName {
			return
		}
		name, ok := NormalizeName(raw, s.p.MinNameLen, s.p.MaxNameLen)
		if !ok {
			s.log.Debug("name rejected", slog.String("raw", raw))
			s.d.Prompter.RequestName(confirm)
			return
		}
		s.name = name
		s.log.Info("player name set", slog.String("name", name))
		s.obs.NameConfirmed(name)
		s.cur.Index++
		s.show()
	}
	s.d.Prompter.RequestName(confirm)
}

func (s *Session) endChapter() {
	s.gen++
	gen := s.gen
	ch := s.cur.Chapter
	s.d.Timer.Cancel()
	s.cur.Revealing = false
	s.setState(ChapterEnding)

	s.text = fmt.Sprintf(s.p.ChapterEndFormat, ch.Title)
	s.d.Display.SetText(s.text)
	s.d.Display.SetSpeakerName("")
	s.d.Dispatcher.HideCharacter()
	s.log.Info("chapter completed", slog.String("chapter", ch.ID), slog.String("title", ch.Title))
	s.obs.ChapterCompleted(ch)

	charAlpha := s.d.Animator.LayerAlpha(display.Character)
	s.end = s.d.Scheduler.Start("chapter-end", sched.Sequence(
		sched.WaitUntil(func() bool { return !s.d.Animator.Busy(charAlpha) }),
		sched.Wait(s.p.EndDwell),
		sched.Call(func() {
			if gen != s.gen {
				return
			}
			s.end = nil
			s.afterChapter(ch)
		}),
	))
}

func (s *Session) afterChapter(ch *domain.Chapter) {
	if ch.Next == nil {
		s.setState(Finished)
		s.log.Info("session finished")
		s.obs.SessionFinished()
		return
	}
	s.cur = Cursor{Chapter: ch.Next}
	s.d.Dispatcher.Reset()
	s.beginChapter()
}
