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

	"vnplayer/internal/domain"
)

// Manifest is the persisted form of a chapter graph. Chapters refer to their
// successor by ID; storage links them into domain.Chapter values.
type Manifest struct {
	Start    string    `json:"start,omitempty" yaml:"start,omitempty"`
	Chapters []Chapter `json:"chapters" yaml:"chapters"`
}

// Chapter is one persisted chapter.
type Chapter struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Number int    `json:"number" yaml:"number"`
	Next   string `json:"next,omitempty" yaml:"next,omitempty"`
	// VoiceByIndex assigns Voice/<id>/001 to entry 0, 002 to entry 1 and so on
	// for entries without voice data of their own.
	VoiceByIndex bool    `json:"voiceByIndex,omitempty" yaml:"voiceByIndex,omitempty"`
	Entries      []Entry `json:"entries" yaml:"entries"`
}

// Entry is a dialogue entry plus the direct voice file reference, a path
// relative to the assets directory.
type Entry struct {
	domain.DialogueEntry `yaml:",inline"`
	VoicePath            string `json:"voiceClip,omitempty" yaml:"voiceClip,omitempty"`
}

// Find returns the chapter with the given ID.
func (m *Manifest) Find(id string) (*Chapter, bool) {
	for i := range m.Chapters {
		if m.Chapters[i].ID == id {
			return &m.Chapters[i], true
		}
	}
	return nil, false
}

// StartID returns Start, or the first chapter's ID when Start is empty.
func (m *Manifest) StartID() string {
	if m.Start != "" || len(m.Chapters) == 0 {
		return m.Start
	}
	return m.Chapters[0].ID
}

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }
