/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backlog

import (
	"strings"
	"testing"

	"vnplayer/internal/domain"
)

var (
	ch1 = &domain.Chapter{ID: "ch1", Title: "One"}
	ch2 = &domain.Chapter{ID: "ch2", Title: "Two"}
)

func TestRecordsAcrossChapters(t *testing.T) {
	b := New(Config{})
	b.EntryShown(ch1, 0, "ALICE", "a")
	b.EntryShown(ch1, 1, "BOB", "b")
	b.EntryShown(ch2, 0, "", "c")
	if _, chapters, total := b.Stats(); chapters != 2 || total != 3 {
		t.Fatalf("expected 2 chapters and 3 lines, got %d/%d", chapters, total)
	}
	got := b.Recent(2)
	if len(got) != 2 || got[0].Text != "b" || got[1].Text != "c" {
		t.Fatalf("unexpected recent: %+v", got)
	}
	if lines := b.Chapter("ch1"); len(lines) != 2 || lines[1].Speaker != "BOB" {
		t.Fatalf("unexpected chapter lines: %+v", lines)
	}
}

func TestBackForward(t *testing.T) {
	b := New(Config{})
	for i, s := range []string{"a", "b", "c"} {
		b.EntryShown(ch1, i, "", s)
	}
	if _, ok := b.Forward(); ok {
		t.Fatalf("forward at live position should fail")
	}
	l, ok := b.Back()
	if !ok || l.Text != "b" || !b.Browsing() {
		t.Fatalf("back expected 'b', got ok=%v %+v", ok, l)
	}
	l, ok = b.Back()
	if !ok || l.Text != "a" {
		t.Fatalf("back expected 'a', got ok=%v %+v", ok, l)
	}
	if _, ok := b.Back(); ok {
		t.Fatalf("back past the oldest line should fail")
	}
	l, ok = b.Forward()
	if !ok || l.Text != "b" {
		t.Fatalf("forward expected 'b', got ok=%v %+v", ok, l)
	}
	b.EntryShown(ch1, 3, "", "d")
	if b.Browsing() {
		t.Fatalf("a new line should return to the live position")
	}
}

func TestCoalesceSameEntry(t *testing.T) {
	b := New(Config{})
	b.EntryShown(ch1, 0, "", "Hello, Player")
	b.EntryShown(ch1, 0, "", "Hello, Mika")
	lines := b.Chapter("ch1")
	if len(lines) != 1 || lines[0].Text != "Hello, Mika" {
		t.Fatalf("expected coalesced line, got %+v", lines)
	}
}

func TestCaps(t *testing.T) {
	b := New(Config{MaxPerChapter: 2})
	for i := 0; i < 10; i++ {
		b.EntryShown(ch1, i, "", "xxxxx")
	}
	if _, _, total := b.Stats(); total != 2 {
		t.Fatalf("expected MaxPerChapter cap to limit to 2, got %d", total)
	}

	b = New(Config{MaxBytes: 12})
	b.EntryShown(ch1, 0, "", "aaaaa")
	b.EntryShown(ch2, 0, "", "bbbbb")
	b.EntryShown(ch2, 1, "", "ccccc")
	bytes, chapters, total := b.Stats()
	if bytes > 12 || total != 2 || chapters != 1 {
		t.Fatalf("expected oldest line pruned, got bytes=%d chapters=%d total=%d", bytes, chapters, total)
	}
	b.EntryShown(ch2, 2, "", strings.Repeat("z", 40))
	if _, _, total := b.Stats(); total != 1 {
		t.Fatalf("the newest line must survive the byte cap, got %d lines", total)
	}
}
