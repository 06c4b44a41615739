/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"strings"
)

// Format renders m as .vns text that Parse reads back into the same manifest.
func Format(m Manifest) string {
	var b strings.Builder
	if m.Start != "" {
		fmt.Fprintf(&b, "@start %s\n\n", m.Start)
	}
	for i, ch := range m.Chapters {
		if i > 0 {
			b.WriteString("\n")
		}
		if ch.Title != "" {
			fmt.Fprintf(&b, "# Chapter %d: %s\n", ch.Number, ch.Title)
		} else {
			fmt.Fprintf(&b, "# Chapter %d\n", ch.Number)
		}
		fmt.Fprintf(&b, "@id %s\n", ch.ID)
		if ch.Next != "" {
			fmt.Fprintf(&b, "@next %s\n", ch.Next)
		}
		if ch.VoiceByIndex {
			b.WriteString("@voice-by-index\n")
		}
		for _, e := range ch.Entries {
			b.WriteString("\n")
			writeEntry(&b, e)
		}
	}
	return b.String()
}

func writeEntry(b *strings.Builder, e Entry) {
	cue := func(name, arg string) {
		if arg != "" {
			fmt.Fprintf(b, "@%s %s\n", name, arg)
		}
	}
	cue("bg", e.BackgroundImage)
	cue("char", e.CharacterSprite)
	if e.HideCharacter {
		b.WriteString("@hide\n")
	}
	cue("music", e.BackgroundMusic)
	cue("sfx", e.SoundEffect)
	cue("voice", e.VoiceClipName)
	cue("voice-file", e.VoicePath)
	if e.SyncVoiceWithText {
		b.WriteString("@sync\n")
	}

	lines := strings.Split(e.Text, "\n")
	switch {
	case e.SpeakerName != "":
		fmt.Fprintf(b, "%s: %s\n", e.SpeakerName, lines[0])
	case needsNarrationMark(lines[0]):
		fmt.Fprintf(b, ": %s\n", lines[0])
	default:
		b.WriteString(lines[0] + "\n")
	}
	for _, l := range lines[1:] {
		fmt.Fprintf(b, "  %s\n", l)
	}
}

// needsNarrationMark reports whether plain narration would be read back as
// something else.
func needsNarrationMark(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" || strings.ContainsAny(t[:1], "#@;:") {
		return true
	}
	return reSpeaker.MatchString(t)
}
