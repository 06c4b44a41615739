//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"vnplayer/internal/backlog"
	"vnplayer/internal/crash"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/sched"
	"vnplayer/internal/textlayout"
	"vnplayer/internal/version"
)

const maxBoxLines = 5

// Run opens the player window and plays opts.Start until the window closes.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	defer crash.Recover(opts.Crash)
	if opts.Start == nil || opts.Build == nil {
		return fmt.Errorf("ui: start chapter and engine builder are required")
	}
	l.Info("starting UI", slog.String("chapter", opts.Start.ID))

	fyneApp := app.NewWithID("vnplayer")
	title := opts.Title
	if title == "" {
		title = "vnplayer " + version.String()
	}
	w := fyneApp.NewWindow(title)
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1280)
	winH := prefs.IntWithFallback("window.height", 720)
	if winW < 640 {
		winW = 640
	}
	if winH < 360 {
		winH = 360
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	st := newStage(w, l)
	eng := opts.Build(st, st, st)
	loop := sched.NewLoop(eng.Scheduler, 16*time.Millisecond)
	st.loop, st.sess = loop, eng.Session
	st.back = opts.Backlog

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			l.Error("playback loop stopped", slog.Any("err", err))
		}
	}()
	loop.Post(func() {
		if err := eng.Session.Start(opts.Start); err != nil {
			l.Error("start failed", slog.Any("err", err))
		}
	})

	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeySpace, fyne.KeyReturn, fyne.KeyEnter:
			st.advance()
		case fyne.KeyB:
			st.showBacklog()
		case fyne.KeyH:
			loop.Post(func() { eng.Session.SetDialogueBoxVisible(eng.Animator.Alpha(display.DialogueBox) < 0.5) })
		}
	})
	w.SetContent(st.content())
	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		_ = loop.Do(context.Background(), eng.Session.Close)
		loop.Stop()
		w.Close()
	})
	w.ShowAndRun()
	return nil
}

// stage renders the layers and the dialogue box. Display, prompter and
// observer calls arrive on the loop goroutine and are handed to fyne.Do.
type stage struct {
	playback.NopObserver

	w   fyne.Window
	log *slog.Logger

	loop *sched.Loop
	sess *playback.Session
	back *backlog.Backlog

	images  [display.DialogueBox]*canvas.Image
	box     *canvas.Rectangle
	speaker *canvas.Text
	lines   [maxBoxLines]*canvas.Text
	boxWrap *fyne.Container
	layout  textlayout.Layout
}

func newStage(w fyne.Window, l *slog.Logger) *stage {
	s := &stage{w: w, log: l}
	for i := range s.images {
		img := canvas.NewImageFromResource(nil)
		img.FillMode = canvas.ImageFillContain
		img.Hide()
		s.images[i] = img
	}
	s.images[display.Background].FillMode = canvas.ImageFillStretch
	s.images[display.BackgroundOverlay].FillMode = canvas.ImageFillStretch
	s.box = canvas.NewRectangle(color.NRGBA{A: 0})
	s.speaker = canvas.NewText("", color.NRGBA{R: 0x8B, G: 0xE9, B: 0xFD, A: 0})
	s.speaker.TextStyle = fyne.TextStyle{Bold: true}
	objs := []fyne.CanvasObject{s.speaker}
	for i := range s.lines {
		s.lines[i] = canvas.NewText("", color.NRGBA{R: 0xE9, G: 0xE9, B: 0xF4, A: 0})
		objs = append(objs, s.lines[i])
	}
	s.boxWrap = container.NewPadded(container.NewVBox(objs...))
	s.layout = textlayout.Layout{Box: textlayout.Box{Measure: textlayout.MeasureFunc(func(t string) float32 {
		return fyne.MeasureText(t, theme.TextSize(), fyne.TextStyle{}).Width
	})}}
	return s
}

func (s *stage) content() fyne.CanvasObject {
	var layers []fyne.CanvasObject
	for _, img := range s.images {
		layers = append(layers, img)
	}
	dialogue := container.NewStack(s.box, s.boxWrap)
	return container.NewStack(append(layers, container.NewBorder(nil, dialogue, nil, nil), newTapArea(s.advance))...)
}

func (s *stage) advance() {
	if s.loop != nil {
		s.loop.Post(s.sess.Advance)
	}
}

func (s *stage) showBacklog() {
	if s.back == nil {
		dialog.ShowInformation("Backlog", "Backlog is disabled.", s.w)
		return
	}
	var b strings.Builder
	for _, l := range s.back.Recent(30) {
		if l.Speaker != "" {
			b.WriteString(l.Speaker + ": ")
		}
		b.WriteString(l.Text + "\n")
	}
	label := widget.NewLabel(b.String())
	label.Wrapping = fyne.TextWrapWord
	scroll := container.NewVScroll(label)
	scroll.SetMinSize(fyne.NewSize(520, 360))
	dialog.ShowCustom("Backlog", "Close", scroll, s.w)
}

func (s *stage) SetText(t string) {
	full := t
	if s.sess != nil {
		full = s.sess.Text()
	}
	fyne.Do(func() {
		s.layout.Box.Width = s.boxWrap.Size().Width - 2*theme.Padding()
		lines := s.layout.Lines(full, t)
		if len(lines) > maxBoxLines {
			lines = lines[len(lines)-maxBoxLines:]
		}
		for i, c := range s.lines {
			c.Text = ""
			if i < len(lines) {
				c.Text = lines[i]
			}
			c.Refresh()
		}
	})
}

func (s *stage) SetSpeakerName(name string) {
	fyne.Do(func() {
		s.speaker.Text = name
		s.speaker.Refresh()
	})
}

func (s *stage) SetLayerAlpha(l display.Layer, a float64) {
	fyne.Do(func() { s.applyAlpha(l, a) })
}

func (s *stage) applyAlpha(l display.Layer, a float64) {
	if l == display.DialogueBox {
		s.box.FillColor = color.NRGBA{A: uint8(180 * a)}
		s.box.Refresh()
		setTextAlpha(s.speaker, a)
		for _, c := range s.lines {
			setTextAlpha(c, a)
		}
		return
	}
	if int(l) >= len(s.images) {
		return
	}
	img := s.images[l]
	img.Translucency = 1 - a
	img.Refresh()
}

func setTextAlpha(t *canvas.Text, a float64) {
	c := color.NRGBAModel.Convert(t.Color).(color.NRGBA)
	c.A = uint8(255 * a)
	t.Color = c
	t.Refresh()
}

func (s *stage) SetLayerImage(l display.Layer, a *domain.Asset) {
	if int(l) >= len(s.images) {
		return
	}
	path := ""
	if a != nil {
		path = a.Path
	}
	fyne.Do(func() {
		img := s.images[l]
		img.File = path
		img.Resource = nil
		if path == "" {
			img.Hide()
		} else {
			img.Show()
		}
		img.Refresh()
	})
}

// RequestName implements playback.NamePrompter.
func (s *stage) RequestName(confirm func(string)) {
	fyne.Do(func() {
		entry := widget.NewEntry()
		entry.SetPlaceHolder("Your name")
		dialog.ShowForm("What is your name?", "OK", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Name", entry),
		}, func(bool) {
			name := entry.Text
			s.loop.Post(func() { confirm(name) })
		}, s.w)
	})
}

func (s *stage) SessionFinished() {
	fyne.Do(func() { dialog.ShowInformation("The End", "Thank you for playing.", s.w) })
}

// tapArea turns a click anywhere on the stage into an advance.
type tapArea struct {
	widget.BaseWidget
	onTap func()
}

func newTapArea(onTap func()) *tapArea {
	t := &tapArea{onTap: onTap}
	t.ExtendBaseWidget(t)
	return t
}

func (t *tapArea) Tapped(*fyne.PointEvent) { t.onTap() }

func (t *tapArea) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(canvas.NewRectangle(color.Transparent))
}
