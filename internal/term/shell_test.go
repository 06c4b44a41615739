/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package term

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"vnplayer/internal/assets"
	"vnplayer/internal/backlog"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/sched"
)

func newShell(t *testing.T, in io.Reader, width int) (*Shell, *playback.Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	back := backlog.New(backlog.Config{})
	sh := New(Options{In: in, Out: &out, Width: width, ShowCues: true, Backlog: back, Logger: applog.Discard()})
	res := assets.NewMap()
	res.Add(domain.CategoryBackground, "hall", 0)
	eng := playback.NewEngine(playback.EngineConfig{
		Display:  sh,
		Resolver: res,
		Prompter: sh,
		Observer: playback.Observers{back, sh},
		Logger:   applog.Discard(),
	})
	return sh, eng, &out
}

func TestShellPlaysChapter(t *testing.T) {
	sh, eng, out := newShell(t, strings.NewReader(""), 10)
	sh.Bind(nil, eng.Session)
	ch := &domain.Chapter{ID: "ch1", Title: "Platform", Number: 1, Entries: []domain.DialogueEntry{
		{SpeakerName: "Aya", Text: "the quick brown fox", BackgroundImage: "hall"},
		{Text: "[NAME_INPUT]"},
		{SpeakerName: "[PLAYER_NAME]", Text: "hi"},
	}}
	if err := eng.Session.Start(ch); err != nil {
		t.Fatalf("start: %v", err)
	}
	eng.Scheduler.RunFor(10*time.Second, 10*time.Millisecond)
	if eng.Session.State() != playback.AwaitingAdvance {
		t.Fatalf("state %s", eng.Session.State())
	}
	got := out.String()
	for _, want := range []string{"== Chapter 1: Platform ==", "[background: hall]", "Aya\n  the quick\n  brown fox"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}

	sh.HandleLine("")
	if !strings.Contains(out.String(), "What is your name?") {
		t.Fatalf("no name prompt:\n%s", out.String())
	}
	sh.HandleLine("  Mika ")
	eng.Scheduler.RunFor(5*time.Second, 10*time.Millisecond)
	if !strings.Contains(out.String(), "Mika\n  hi") {
		t.Fatalf("named line missing:\n%s", out.String())
	}

	sh.HandleLine("l")
	if !strings.Contains(out.String(), "Backlog (2)") || !strings.Contains(out.String(), "Aya: the quick brown fox") {
		t.Fatalf("backlog missing:\n%s", out.String())
	}

	sh.HandleLine("")
	eng.Scheduler.RunFor(10*time.Second, 10*time.Millisecond)
	if eng.Session.State() != playback.Finished {
		t.Fatalf("state %s", eng.Session.State())
	}
	if !strings.Contains(out.String(), "Platform - completed") || !strings.Contains(out.String(), "The End") {
		t.Fatalf("ending missing:\n%s", out.String())
	}
	select {
	case <-sh.finished:
	default:
		t.Fatalf("finished not signalled")
	}
}

func TestShellBrowsesBacklog(t *testing.T) {
	sh, eng, out := newShell(t, strings.NewReader(""), 40)
	sh.Bind(nil, eng.Session)
	ch := &domain.Chapter{ID: "c", Title: "T", Entries: []domain.DialogueEntry{
		{SpeakerName: "Aya", Text: "first"},
		{Text: "second"},
		{Text: "third"},
	}}
	if err := eng.Session.Start(ch); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		eng.Scheduler.RunFor(2*time.Second, 10*time.Millisecond)
		sh.HandleLine("")
	}
	eng.Scheduler.RunFor(2*time.Second, 10*time.Millisecond)
	if eng.Session.Cursor().Index != 2 {
		t.Fatalf("index %d", eng.Session.Cursor().Index)
	}

	out.Reset()
	sh.HandleLine("b")
	sh.HandleLine("b")
	sh.HandleLine("b")
	got := out.String()
	if !strings.Contains(got, "second\n") || !strings.Contains(got, "Aya: first") || !strings.Contains(got, "(start of backlog)") {
		t.Fatalf("browsing back:\n%s", got)
	}

	out.Reset()
	sh.HandleLine("f")
	if !strings.Contains(out.String(), "second") {
		t.Fatalf("browsing forward:\n%s", out.String())
	}

	// Enter while browsing returns to the story without advancing it.
	sh.HandleLine("")
	if !strings.Contains(out.String(), "(back to the story)") || eng.Session.Cursor().Index != 2 {
		t.Fatalf("enter while browsing advanced to %d:\n%s", eng.Session.Cursor().Index, out.String())
	}
	out.Reset()
	sh.HandleLine("f")
	if !strings.Contains(out.String(), "(latest line)") {
		t.Fatalf("expected live position:\n%s", out.String())
	}
}

func TestShellSkipCompletesText(t *testing.T) {
	sh, eng, out := newShell(t, strings.NewReader(""), 40)
	sh.Bind(nil, eng.Session)
	ch := &domain.Chapter{ID: "c", Title: "T", Entries: []domain.DialogueEntry{{Text: "a rather long narration line"}}}
	if err := eng.Session.Start(ch); err != nil {
		t.Fatalf("start: %v", err)
	}
	eng.Scheduler.Advance(120 * time.Millisecond)
	sh.HandleLine("")
	if eng.Session.State() != playback.AwaitingAdvance {
		t.Fatalf("state %s", eng.Session.State())
	}
	if !strings.Contains(out.String(), "  a rather long narration line") {
		t.Fatalf("skip did not print the full line:\n%s", out.String())
	}
}

func TestRunQuitsOnCommand(t *testing.T) {
	pr, pw := io.Pipe()
	sh, eng, out := newShell(t, pr, 72)
	sh.Bind(sched.NewLoop(eng.Scheduler, time.Millisecond), eng.Session)
	ch := &domain.Chapter{ID: "c", Title: "T", Entries: []domain.DialogueEntry{{Text: "hello"}}}
	go func() { _, _ = io.WriteString(pw, "q\n") }()
	done := make(chan error, 1)
	go func() { done <- sh.Run(context.Background(), ch) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
	_ = pw.Close()
	if eng.Session.State() != playback.Finished {
		t.Fatalf("session not closed: %s", eng.Session.State())
	}
	if !strings.Contains(out.String(), "Enter: advance") {
		t.Fatalf("missing hint:\n%s", out.String())
	}
}

func TestRunEndsOnEOF(t *testing.T) {
	sh, eng, _ := newShell(t, strings.NewReader(""), 72)
	sh.Bind(sched.NewLoop(eng.Scheduler, time.Millisecond), eng.Session)
	ch := &domain.Chapter{ID: "c", Title: "T", Entries: []domain.DialogueEntry{{Text: "hello"}}}
	if err := sh.Run(context.Background(), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunWithoutSession(t *testing.T) {
	sh := New(Options{Out: io.Discard})
	if err := sh.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error without bound session")
	}
}
