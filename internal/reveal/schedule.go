/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package reveal paces dialogue text onto the display one character at a time,
// either at a fixed speed or stretched to match a voice line.
package reveal

import (
	"iter"
	"time"
)

// Policy holds the pacing constants.
type Policy struct {
	Speed    time.Duration // per character in fixed mode
	PreRoll  time.Duration // between the duck request and voice start
	MinDelay time.Duration
	MaxDelay time.Duration
	Margin   float64       // share of the voice length used for text
	TailPad  time.Duration // held after the voice ends
}

// DefaultPolicy returns the stock pacing.
func DefaultPolicy() Policy {
	return Policy{
		Speed:    50 * time.Millisecond,
		PreRoll:  100 * time.Millisecond,
		MinDelay: 20 * time.Millisecond,
		MaxDelay: 150 * time.Millisecond,
		Margin:   0.95,
		TailPad:  100 * time.Millisecond,
	}
}

// CharDelay returns the per-character delay for text of n characters read over
// a voice line of length voice: voice/n*Margin clamped to [MinDelay, MaxDelay].
func CharDelay(voice time.Duration, n int, p Policy) time.Duration {
	if n <= 0 {
		return p.MinDelay
	}
	d := time.Duration(float64(voice) / float64(n) * p.Margin)
	if d < p.MinDelay {
		d = p.MinDelay
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Schedule is the reveal sequence of one string. Character k (1-based) appears
// at (k-1)*Delay and the reveal lasts Len()*Delay. Counting is by rune.
type Schedule struct {
	runes []rune
	Delay time.Duration
}

// NewSchedule builds a schedule for text.
func NewSchedule(text string, delay time.Duration) Schedule {
	return Schedule{runes: []rune(text), Delay: delay}
}

// Len returns the number of characters.
func (s Schedule) Len() int { return len(s.runes) }

// Total is the time from the first character to completion.
func (s Schedule) Total() time.Duration { return s.Delay * time.Duration(len(s.runes)) }

// Visible returns how many characters show after elapsed.
func (s Schedule) Visible(elapsed time.Duration) int {
	n := len(s.runes)
	if n == 0 || s.Delay <= 0 {
		return n
	}
	if elapsed < 0 {
		return 0
	}
	v := int(elapsed/s.Delay) + 1
	if v > n {
		v = n
	}
	return v
}

// Prefix returns the first n characters.
func (s Schedule) Prefix(n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s.runes) {
		return string(s.runes)
	}
	return string(s.runes[:n])
}

// Frames yields each partial string with the offset it appears at. Each range
// over the result starts again from the first character.
func (s Schedule) Frames() iter.Seq2[time.Duration, string] {
	return func(yield func(time.Duration, string) bool) {
		for k := 1; k <= len(s.runes); k++ {
			if !yield(time.Duration(k-1)*s.Delay, string(s.runes[:k])) {
				return
			}
		}
	}
}
