/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package term plays a session in a terminal. The typewriter reveal is
// printed as it happens on lines wrapped up front. Enter advances, "b" and
// "f" step through earlier lines, "l" lists the backlog and "q" quits.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"vnplayer/internal/backlog"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/sched"
	"vnplayer/internal/textlayout"
)

const (
	indent = "  "
	help   = "Enter: advance   b/f: browse lines   l: backlog   q: quit"
)

// Options configures a Shell.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Width is the dialogue width in columns (72 when zero).
	Width int
	// ShowCues prints background and sprite changes.
	ShowCues bool
	Backlog  *backlog.Backlog
	Logger   *slog.Logger
}

type styles struct {
	banner, speaker, text, cue, prompt, hint lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		banner:  r.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true),
		speaker: r.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Bold(true),
		text:    r.NewStyle().Foreground(lipgloss.Color("#E9E9F4")),
		cue:     r.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		hint:    r.NewStyle().Foreground(lipgloss.Color("#6272A4")),
	}
}

// Shell is a terminal Display, NamePrompter and Observer. Apart from Run,
// its methods run on the playback loop goroutine, which also owns all output.
type Shell struct {
	playback.NopObserver

	opts   Options
	out    io.Writer
	st     styles
	layout textlayout.Layout
	log    *slog.Logger

	loop *sched.Loop
	sess *playback.Session

	speaker string
	printed string
	open    bool
	images  map[display.Layer]string
	confirm func(string)

	finished chan struct{}
	finOnce  sync.Once
	quit     chan struct{}
	quitOnce sync.Once
}

var (
	_ display.Display       = (*Shell)(nil)
	_ playback.NamePrompter = (*Shell)(nil)
	_ playback.Observer     = (*Shell)(nil)
)

// New returns a shell writing to opts.Out.
func New(opts Options) *Shell {
	if opts.Width <= 0 {
		opts.Width = 72
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("term")
	}
	return &Shell{
		opts:     opts,
		out:      opts.Out,
		st:       newStyles(lipgloss.NewRenderer(opts.Out)),
		layout:   textlayout.Layout{Box: textlayout.Box{Measure: textlayout.MeasureFunc(cellWidth), Width: float32(opts.Width)}},
		log:      l,
		images:   map[display.Layer]string{},
		finished: make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

func cellWidth(s string) float32 { return float32(lipgloss.Width(s)) }

// Bind attaches the session driven by loop.
func (s *Shell) Bind(loop *sched.Loop, sess *playback.Session) { s.loop, s.sess = loop, sess }

// Run starts playback at ch and reads commands until the story ends, the
// player quits, input closes or ctx is done. It drives the loop itself.
func (s *Shell) Run(ctx context.Context, ch *domain.Chapter) error {
	if s.loop == nil || s.sess == nil {
		return fmt.Errorf("term: no session bound")
	}
	// The loop outlives ctx so the session can be closed on the way out.
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- s.loop.Run(loopCtx) }()
	defer s.loop.Stop()

	var startErr error
	if err := s.loop.Do(ctx, func() {
		s.printf("%s\n", s.st.hint.Render(help))
		startErr = s.sess.Start(ch)
	}); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	eof := make(chan struct{})
	go func() {
		defer close(eof)
		sc := bufio.NewScanner(s.opts.In)
		for sc.Scan() {
			line := sc.Text()
			s.loop.Post(func() { s.HandleLine(line) })
		}
	}()

	select {
	case <-ctx.Done():
	case <-s.finished:
	case <-s.quit:
	case <-eof:
	}
	_ = s.loop.Do(context.Background(), func() {
		s.sess.Close()
		s.endBlock()
	})
	s.loop.Stop()
	return <-loopDone
}

// HandleLine applies one line of player input.
func (s *Shell) HandleLine(line string) {
	cmd := strings.TrimSpace(line)
	if s.sess.State() == playback.AwaitingName && s.confirm != nil {
		confirm := s.confirm
		s.confirm = nil
		confirm(cmd)
		return
	}
	switch strings.ToLower(cmd) {
	case "":
		if s.opts.Backlog != nil && s.opts.Backlog.Browsing() {
			for {
				if _, ok := s.opts.Backlog.Forward(); !ok {
					break
				}
			}
			s.endBlock()
			s.printf("%s\n", s.st.hint.Render("(back to the story)"))
			return
		}
		s.sess.Advance()
	case "q", "quit":
		s.quitOnce.Do(func() { close(s.quit) })
	case "b", "back":
		s.browse(s.opts.Backlog.Back, "(start of backlog)")
	case "f", "forward":
		s.browse(s.opts.Backlog.Forward, "(latest line)")
	case "l", "log", "backlog":
		s.printBacklog(10)
	case "?", "h", "help":
		s.endBlock()
		s.printf("%s\n", s.st.hint.Render(help))
	default:
		s.endBlock()
		s.printf("%s\n", s.st.hint.Render("unknown command "+fmt.Sprintf("%q", cmd)))
	}
}

// browse prints the line step moves to, or edge when there is none.
func (s *Shell) browse(step func() (backlog.Line, bool), edge string) {
	s.endBlock()
	if s.opts.Backlog == nil {
		s.printf("%s\n", s.st.hint.Render("backlog disabled"))
		return
	}
	l, ok := step()
	if !ok {
		s.printf("%s\n", s.st.hint.Render(edge))
		return
	}
	s.printLine(l)
}

func (s *Shell) printLine(l backlog.Line) {
	if l.Speaker != "" {
		s.printf("%s %s\n", s.st.speaker.Render(l.Speaker+":"), s.st.text.Render(l.Text))
	} else {
		s.printf("%s\n", s.st.text.Render(l.Text))
	}
}

func (s *Shell) printBacklog(n int) {
	s.endBlock()
	if s.opts.Backlog == nil {
		s.printf("%s\n", s.st.hint.Render("backlog disabled"))
		return
	}
	lines := s.opts.Backlog.Recent(n)
	s.printf("%s\n", s.st.banner.Render(fmt.Sprintf("Backlog (%d)", len(lines))))
	for _, l := range lines {
		s.printLine(l)
	}
}

func (s *Shell) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(s.out, format, args...); err != nil {
		s.log.Debug("write failed", slog.Any("err", err))
	}
}

// endBlock terminates a partially printed dialogue block.
func (s *Shell) endBlock() {
	if s.open {
		s.printf("\n")
		s.open = false
	}
	s.printed = ""
}

func (s *Shell) startBlock() {
	s.endBlock()
	s.printf("\n")
	if s.speaker != "" && (s.sess == nil || s.sess.State() != playback.ChapterEnding) {
		s.printf("%s\n", s.st.speaker.Render(s.speaker))
	}
	s.printf("%s", indent)
	s.open = true
}

// SetText prints the part of t not yet on screen. Text that does not extend
// what is printed starts a new block.
func (s *Shell) SetText(t string) {
	full := t
	if s.sess != nil {
		full = s.sess.Text()
	}
	laid := strings.Join(s.layout.Lines(full, t), "\n")
	if t == "" || !s.open || !strings.HasPrefix(laid, s.printed) {
		s.startBlock()
	}
	if rest := laid[len(s.printed):]; rest != "" {
		parts := strings.Split(rest, "\n")
		for i, p := range parts {
			if p != "" {
				parts[i] = s.st.text.Render(p)
			}
		}
		s.printf("%s", strings.Join(parts, "\n"+indent))
		s.printed = laid
	}
}

func (s *Shell) SetSpeakerName(name string) { s.speaker = name }

func (s *Shell) SetLayerAlpha(display.Layer, float64) {}

func (s *Shell) SetLayerImage(l display.Layer, a *domain.Asset) {
	if !s.opts.ShowCues || (l != display.Background && l != display.Character) {
		return
	}
	name := a.Name()
	if name == "" || s.images[l] == name {
		return
	}
	s.images[l] = name
	s.endBlock()
	s.printf("%s\n", s.st.cue.Render(fmt.Sprintf("[%s: %s]", l, name)))
}

// RequestName implements playback.NamePrompter.
func (s *Shell) RequestName(confirm func(string)) {
	s.confirm = confirm
	s.endBlock()
	s.printf("%s", s.st.prompt.Render("What is your name? "))
}

func (s *Shell) ChapterStarted(ch *domain.Chapter) {
	s.endBlock()
	title := ch.Title
	if ch.Number > 0 {
		title = fmt.Sprintf("Chapter %d: %s", ch.Number, ch.Title)
	}
	s.printf("\n%s\n", s.st.banner.Render("== "+title+" =="))
}

func (s *Shell) SessionFinished() {
	s.endBlock()
	s.printf("\n%s\n", s.st.banner.Render("The End"))
	s.finOnce.Do(func() { close(s.finished) })
}
