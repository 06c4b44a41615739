/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reveal

import (
	"testing"
	"time"
)

func TestCharDelayClamps(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		voice time.Duration
		n     int
		min   time.Duration
		max   time.Duration
	}{
		{3 * time.Second, 60, 47499 * time.Microsecond, 47501 * time.Microsecond},
		{100 * time.Millisecond, 60, p.MinDelay, p.MinDelay},
		{30 * time.Second, 10, p.MaxDelay, p.MaxDelay},
		{time.Second, 0, p.MinDelay, p.MinDelay},
	}
	for _, c := range cases {
		got := CharDelay(c.voice, c.n, p)
		if got < c.min || got > c.max {
			t.Fatalf("CharDelay(%v, %d) = %v, want in [%v, %v]", c.voice, c.n, got, c.min, c.max)
		}
	}
}

func TestScheduleVisibleIsRuneBased(t *testing.T) {
	s := NewSchedule("Привет", 10*time.Millisecond)
	if s.Len() != 6 {
		t.Fatalf("Len = %d", s.Len())
	}
	steps := []struct {
		at   time.Duration
		want string
	}{
		{-time.Millisecond, ""},
		{0, "П"},
		{9 * time.Millisecond, "П"},
		{10 * time.Millisecond, "Пр"},
		{55 * time.Millisecond, "Привет"},
		{time.Hour, "Привет"},
	}
	for _, st := range steps {
		if got := s.Prefix(s.Visible(st.at)); got != st.want {
			t.Fatalf("at %v got %q, want %q", st.at, got, st.want)
		}
	}
	if s.Total() != 60*time.Millisecond {
		t.Fatalf("Total = %v", s.Total())
	}
}

func TestScheduleEmptyAndInstant(t *testing.T) {
	if NewSchedule("", time.Second).Visible(0) != 0 {
		t.Fatalf("empty text shows nothing")
	}
	if NewSchedule("abc", 0).Visible(0) != 3 {
		t.Fatalf("zero delay shows everything at once")
	}
}

func TestFramesRestartable(t *testing.T) {
	s := NewSchedule("abc", time.Millisecond)
	for range 2 {
		var got []string
		for at, txt := range s.Frames() {
			if at != time.Duration(len(got))*time.Millisecond {
				t.Fatalf("offset %v for frame %d", at, len(got))
			}
			got = append(got, txt)
		}
		if len(got) != 3 || got[2] != "abc" {
			t.Fatalf("frames = %v", got)
		}
	}
	n := 0
	for range s.Frames() {
		n++
		if n == 1 {
			break
		}
	}
	if n != 1 {
		t.Fatalf("early break not honoured")
	}
}
