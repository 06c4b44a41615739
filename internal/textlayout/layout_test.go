/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"reflect"
	"testing"
)

func TestWrap_Greedy(t *testing.T) {
	w := Box{Measure: Cells, Width: 10}.Wrap("the quick brown fox")
	if !reflect.DeepEqual(w.Lines, []string{"the quick", "brown fox"}) {
		t.Fatalf("lines: %q", w.Lines)
	}
}

func TestWrap_LongWordAndNewline(t *testing.T) {
	w := Box{Measure: Cells, Width: 5}.Wrap("abcdefghijkl\nok")
	want := []string{"abcde", "fghij", "kl", "ok"}
	if !reflect.DeepEqual(w.Lines, want) {
		t.Fatalf("lines: %q want %q", w.Lines, want)
	}
	if got := (Box{}).Wrap("no wrap at all").Lines; len(got) != 1 {
		t.Fatalf("zero width should not wrap: %q", got)
	}
}

func TestReveal_KeepsLineBreaks(t *testing.T) {
	w := Box{Measure: Cells, Width: 10}.Wrap("the quick brown fox")
	cases := []struct {
		n    int
		want string
	}{
		{0, ""},
		{5, "the q"},
		{10, "the quick"},
		{11, "the quick\nb"},
		{100, "the quick\nbrown fox"},
	}
	for _, c := range cases {
		if got := w.Reveal(c.n); got != c.want {
			t.Fatalf("Reveal(%d) = %q want %q", c.n, got, c.want)
		}
	}
}

func TestLayout_FollowsShownText(t *testing.T) {
	l := &Layout{Box: Box{Measure: Cells, Width: 10}}
	full := "the quick brown fox"
	if got := l.Lines(full, "the quick b"); !reflect.DeepEqual(got, []string{"the quick", "b"}) {
		t.Fatalf("partial: %q", got)
	}
	if got := l.Lines(full, ""); got != nil {
		t.Fatalf("empty: %q", got)
	}
	// Text that is not part of the full line is wrapped on its own.
	if got := l.Lines(full, "Arrival - completed"); !reflect.DeepEqual(got, []string{"Arrival -", "completed"}) {
		t.Fatalf("foreign: %q", got)
	}
}

func TestFaceMeasurer_Deterministic(t *testing.T) {
	m := FaceMeasurer{}
	if m.Advance("ABC") != m.Advance("A")+m.Advance("BC") {
		t.Fatalf("advance should be additive for the fixed-width face")
	}
	if m.LineHeight() <= 0 {
		t.Fatalf("line height should be positive")
	}
	if _, err := MeasurerFor("", 12); err != nil {
		t.Fatalf("default measurer: %v", err)
	}
	if _, err := LoadFace("missing.ttf", 12, 72); err == nil {
		t.Fatalf("expected error for missing font")
	}
}
