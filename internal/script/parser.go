/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reHeading   = regexp.MustCompile(`^#+\s*(?:(?i:chapter)\s+(\d+)\s*[:.\-]?\s*)?(.*)$`)
	reDirective = regexp.MustCompile(`^@([a-z\-]+)\s*(.*)$`)
	reSpeaker   = regexp.MustCompile(`^([\p{L}\p{N}_\-' ]{1,64}?)\s*:\s*(.*)$`)
)

// Parse parses .vns script text into a Manifest.
// Supported syntax:
//   - "# Chapter <n>: <title>" (or "# <title>") starts a chapter; its ID defaults to ch<n>.
//   - Chapter directives: @id, @next, @voice-by-index. @start before the first chapter
//     names the start chapter.
//   - Cue directives apply to the next line: @bg, @char, @hide, @music, @sfx,
//     @voice (clip name), @voice-file (path under the assets dir), @sync.
//   - Dialogue: NAME: text. Narration: any other line, or ": text" to keep a colon.
//   - Continuation lines indented by 2+ spaces are appended to the previous line.
//   - Lines starting with ';' are comments.
func Parse(input string) (Manifest, []Error) {
	var m Manifest
	var errs []Error
	var cur *Chapter
	var last *Entry
	var pending Entry
	pendingLine := 0

	fail := func(line int, format string, args ...any) {
		errs = append(errs, Error{Line: line, Message: fmt.Sprintf(format, args...)})
	}
	flushPending := func() {
		if pendingLine > 0 {
			fail(pendingLine, "cue directives without a following line")
			pending, pendingLine = Entry{}, 0
		}
	}
	chapter := func(num int, title string) {
		flushPending()
		if num == 0 {
			num = len(m.Chapters) + 1
		}
		m.Chapters = append(m.Chapters, Chapter{ID: "ch" + strconv.Itoa(num), Title: title, Number: num})
		cur, last = &m.Chapters[len(m.Chapters)-1], nil
	}
	add := func(lineNo int, speaker, text string) {
		if cur == nil {
			chapter(0, "Untitled")
		}
		e := pending
		e.SpeakerName, e.Text = speaker, text
		cur.Entries = append(cur.Entries, e)
		last = &cur.Entries[len(cur.Entries)-1]
		pending, pendingLine = Entry{}, 0
	}

	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")

		if strings.HasPrefix(line, "  ") && last != nil {
			if cont := strings.TrimSpace(line); cont != "" {
				last.Text += "\n" + cont
				continue
			}
		}
		trim := strings.TrimSpace(line)
		if trim == "" {
			last = nil
			continue
		}
		if strings.HasPrefix(trim, ";") {
			continue
		}
		if mm := reHeading.FindStringSubmatch(trim); mm != nil {
			n, _ := strconv.Atoi(mm[1])
			chapter(n, strings.TrimSpace(mm[2]))
			continue
		}
		if mm := reDirective.FindStringSubmatch(trim); mm != nil {
			last = nil
			name, arg := mm[1], strings.TrimSpace(mm[2])
			if !directive(&m, cur, &pending, name, arg) {
				fail(lineNo, "unknown or misplaced directive @%s", name)
				continue
			}
			if isCue(name) && pendingLine == 0 {
				pendingLine = lineNo
			}
			continue
		}
		if strings.HasPrefix(trim, ":") {
			add(lineNo, "", strings.TrimSpace(strings.TrimPrefix(trim, ":")))
			continue
		}
		if mm := reSpeaker.FindStringSubmatch(trim); mm != nil {
			add(lineNo, strings.TrimSpace(mm[1]), strings.TrimSpace(mm[2]))
			continue
		}
		add(lineNo, "", trim)
	}
	flushPending()
	if err := sc.Err(); err != nil {
		fail(lineNo, "%v", err)
	}
	return m, errs
}

func isCue(name string) bool {
	switch name {
	case "bg", "char", "hide", "music", "sfx", "voice", "voice-file", "sync":
		return true
	}
	return false
}

// directive applies one @name directive and reports whether it was valid here.
func directive(m *Manifest, ch *Chapter, e *Entry, name, arg string) bool {
	if name == "start" {
		m.Start = arg
		return arg != ""
	}
	if ch == nil && !isCue(name) {
		return false
	}
	switch name {
	case "id":
		ch.ID = arg
		return arg != ""
	case "next":
		ch.Next = arg
	case "voice-by-index":
		ch.VoiceByIndex = true
	case "bg":
		e.BackgroundImage = arg
	case "char":
		e.CharacterSprite = arg
	case "hide":
		e.HideCharacter = true
	case "music":
		e.BackgroundMusic = arg
	case "sfx":
		e.SoundEffect = arg
	case "voice":
		e.VoiceClipName = arg
	case "voice-file":
		e.VoicePath = arg
	case "sync":
		e.SyncVoiceWithText = true
	default:
		return false
	}
	return true
}
