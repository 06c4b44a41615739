/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backlog keeps the recently shown dialogue lines in memory so shells
// can let the player scroll back through them.
package backlog

import (
	"sort"
	"sync"

	"vnplayer/internal/domain"
	"vnplayer/internal/playback"
)

// Line is one shown dialogue line.
type Line struct {
	Chapter string
	Title   string
	Entry   int
	Speaker string
	Text    string
	Seq     int
}

func (l Line) size() int { return len(l.Speaker) + len(l.Text) }

// Config controls memory and depth caps.
type Config struct {
	// MaxBytes is a soft cap; the oldest lines are pruned when exceeded.
	MaxBytes int
	// MaxPerChapter limits the lines kept per chapter (0 means unlimited).
	MaxPerChapter int
}

// Backlog is a playback.Observer that records shown lines per chapter with
// performance safeguards. It is safe for concurrent use: the playback loop
// writes while shell goroutines read.
type Backlog struct {
	playback.NopObserver

	cfg Config
	mu  sync.Mutex
	// per-chapter lines, oldest first
	lines map[string][]Line
	seq   int
	// browse position as an offset from the newest line; 0 means live
	back       int
	totalBytes int
}

var _ playback.Observer = (*Backlog)(nil)

func New(cfg Config) *Backlog {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1024 * 1024
	}
	return &Backlog{cfg: cfg, lines: make(map[string][]Line)}
}

// EntryShown records a line. Showing the same entry of a chapter twice in a
// row replaces the earlier record.
func (b *Backlog) EntryShown(ch *domain.Chapter, index int, speaker, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	l := Line{Chapter: ch.ID, Title: ch.Title, Entry: index, Speaker: speaker, Text: text, Seq: b.seq}
	stack := b.lines[l.Chapter]
	if n := len(stack); n > 0 && stack[n-1].Entry == index {
		b.totalBytes += l.size() - stack[n-1].size()
		stack[n-1] = l
	} else {
		stack = append(stack, l)
		b.totalBytes += l.size()
	}
	b.lines[l.Chapter] = stack
	b.back = 0
	b.enforceCapsLocked(l.Chapter)
}

// Back moves the browse position one line into the past and returns that line.
func (b *Backlog) Back() (Line, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.allLocked()
	if b.back+1 >= len(all) {
		return Line{}, false
	}
	b.back++
	return all[len(all)-1-b.back], true
}

// Forward moves the browse position one line towards the present.
func (b *Backlog) Forward() (Line, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.back == 0 {
		return Line{}, false
	}
	b.back--
	all := b.allLocked()
	return all[len(all)-1-b.back], true
}

// Browsing reports whether the browse position is away from the newest line.
func (b *Backlog) Browsing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.back > 0
}

// Recent returns up to n of the newest lines, oldest first; n <= 0 returns all.
func (b *Backlog) Recent(n int) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.allLocked()
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Chapter returns the lines kept for one chapter.
func (b *Backlog) Chapter(id string) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Line(nil), b.lines[id]...)
}

// Stats returns current sizes for diagnostics.
func (b *Backlog) Stats() (totalBytes int, chapters int, totalLines int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.lines {
		totalLines += len(v)
	}
	return b.totalBytes, len(b.lines), totalLines
}

func (b *Backlog) allLocked() []Line {
	var out []Line
	for _, v := range b.lines {
		out = append(out, v...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (b *Backlog) enforceCapsLocked(chapter string) {
	if b.cfg.MaxPerChapter > 0 {
		stack := b.lines[chapter]
		if len(stack) > b.cfg.MaxPerChapter {
			drop := len(stack) - b.cfg.MaxPerChapter
			for i := 0; i < drop; i++ {
				b.totalBytes -= stack[i].size()
			}
			b.lines[chapter] = append([]Line{}, stack[drop:]...)
		}
	}
	// Global memory cap: prune the oldest line across all chapters, but never
	// the newest one.
	for b.totalBytes > b.cfg.MaxBytes {
		oldest := ""
		oldestSeq := 0
		for id, stack := range b.lines {
			if len(stack) == 0 {
				continue
			}
			if oldest == "" || stack[0].Seq < oldestSeq {
				oldest, oldestSeq = id, stack[0].Seq
			}
		}
		if oldest == "" || oldestSeq == b.seq {
			break
		}
		stack := b.lines[oldest]
		b.totalBytes -= stack[0].size()
		b.lines[oldest] = stack[1:]
		if len(b.lines[oldest]) == 0 {
			delete(b.lines, oldest)
		}
	}
}
