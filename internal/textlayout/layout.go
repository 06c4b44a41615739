/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout wraps dialogue text to a box width once, up front, so a
// typewriter reveal grows inside fixed lines instead of reflowing as words
// appear.
package textlayout

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Measurer reports the advance width of a string.
type Measurer interface {
	Advance(s string) float32
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(s string) float32

func (f MeasureFunc) Advance(s string) float32 { return f(s) }

// Cells counts one unit per rune. Good enough for monospaced terminals.
var Cells = MeasureFunc(func(s string) float32 { return float32(utf8.RuneCountInString(s)) })

// FaceMeasurer measures in pixels with a font face; basicfont 7x13 when Face is nil.
type FaceMeasurer struct{ Face font.Face }

func (m FaceMeasurer) Advance(s string) float32 {
	face := m.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	d := &font.Drawer{Face: face}
	return float32(d.MeasureString(s) >> 6)
}

// LineHeight returns the face's line height in pixels.
func (m FaceMeasurer) LineHeight() float32 {
	face := m.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	return float32(face.Metrics().Height.Round())
}

// Box is a dialogue box of a fixed width.
type Box struct {
	Measure Measurer
	Width   float32
}

// Wrapped is text broken into lines. Line i holds the runes of the source in
// [start[i], start[i]+len(line i)); spaces at soft breaks belong to no line.
type Wrapped struct {
	Text  string
	Lines []string
	start []int
	size  []int
}

// Wrap breaks text greedily at spaces. Words wider than the box are split
// between runes; explicit newlines always break. Width <= 0 disables wrapping.
func (b Box) Wrap(text string) Wrapped {
	m := b.Measure
	if m == nil {
		m = Cells
	}
	r := []rune(text)
	w := Wrapped{Text: text}
	emit := func(from, to int) {
		w.Lines = append(w.Lines, string(r[from:to]))
		w.start = append(w.start, from)
		w.size = append(w.size, to-from)
	}
	ps := 0
	for ps <= len(r) {
		pe := ps
		for pe < len(r) && r[pe] != '\n' {
			pe++
		}
		lineStart, lastBreak := ps, -1
		for j := ps; j < pe && b.Width > 0; j++ {
			if r[j] == ' ' {
				lastBreak = j
			}
			if j == lineStart || m.Advance(string(r[lineStart:j+1])) <= b.Width {
				continue
			}
			end, next := j, j
			if lastBreak > lineStart {
				end, next = lastBreak, lastBreak+1
			}
			emit(lineStart, end)
			lineStart = next
			for lineStart < pe && r[lineStart] == ' ' {
				lineStart++
			}
			j, lastBreak = lineStart-1, -1
		}
		emit(lineStart, pe)
		ps = pe + 1
	}
	return w
}

// Reveal returns the first n runes of the source laid out on the wrapped lines.
func (w Wrapped) Reveal(n int) string {
	var b strings.Builder
	for i, line := range w.Lines {
		s := w.start[i]
		if n <= s && !(w.size[i] == 0 && n == s && n > 0) {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		k := n - s
		if k > w.size[i] {
			k = w.size[i]
		}
		if k > 0 {
			b.WriteString(string([]rune(line)[:k]))
		}
	}
	return b.String()
}

// Matches reports whether shown is a rune prefix of the wrapped source, that
// is, whether Reveal can lay it out.
func (w Wrapped) Matches(shown string) bool { return strings.HasPrefix(w.Text, shown) }

// Layout is the stateful helper shells use: it re-wraps only when the full
// text changes and lays out whatever part of it is currently shown.
type Layout struct {
	Box  Box
	last Wrapped
	ok   bool
}

// Lines returns the shown text laid out on the lines of full. Text that is not
// a prefix of full is wrapped on its own.
func (l *Layout) Lines(full, shown string) []string {
	if !l.ok || l.last.Text != full {
		l.last, l.ok = l.Box.Wrap(full), true
	}
	if !l.last.Matches(shown) {
		return l.Box.Wrap(shown).Lines
	}
	out := l.last.Reveal(utf8.RuneCountInString(shown))
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
