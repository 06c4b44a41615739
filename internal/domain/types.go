/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"strings"
	"time"
)

// This file defines the playback data model: chapters, their dialogue entries and the
// assets entries refer to. Chapters are loaded once before playback and only read afterwards.

// Chapter is an immutable script unit. Entries play in slice order.
// Next is a borrowed reference; several chapters may point at the same successor.
type Chapter struct {
	ID      string          `json:"id" yaml:"id"`
	Title   string          `json:"title" yaml:"title"`
	Number  int             `json:"number" yaml:"number"`
	Entries []DialogueEntry `json:"entries" yaml:"entries"`
	Next    *Chapter        `json:"-" yaml:"-"`
}

// Len returns the entry count; a nil chapter has none.
func (c *Chapter) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Entry returns the entry at i and whether i is in range.
func (c *Chapter) Entry(i int) (DialogueEntry, bool) {
	if c == nil || i < 0 || i >= len(c.Entries) {
		return DialogueEntry{}, false
	}
	return c.Entries[i], true
}

// DialogueEntry is one beat of dialogue plus the cues that accompany it.
// Empty keys mean "no change" for their category; HideCharacter wins over CharacterSprite.
type DialogueEntry struct {
	Text            string `json:"text" yaml:"text"`
	SpeakerName     string `json:"speakerName,omitempty" yaml:"speakerName,omitempty"`
	BackgroundImage string `json:"backgroundImage,omitempty" yaml:"backgroundImage,omitempty"`
	CharacterSprite string `json:"characterSprite,omitempty" yaml:"characterSprite,omitempty"`
	HideCharacter   bool   `json:"hideCharacter,omitempty" yaml:"hideCharacter,omitempty"`
	BackgroundMusic string `json:"backgroundMusic,omitempty" yaml:"backgroundMusic,omitempty"`
	SoundEffect     string `json:"soundEffect,omitempty" yaml:"soundEffect,omitempty"`
	// VoiceClipName is looked up in the voice category when VoiceClip is nil.
	VoiceClipName     string `json:"voiceClipName,omitempty" yaml:"voiceClipName,omitempty"`
	SyncVoiceWithText bool   `json:"syncVoiceWithText,omitempty" yaml:"syncVoiceWithText,omitempty"`

	// VoiceClip is the direct reference, resolved by the loader from the manifest's voiceClip path.
	VoiceClip *Asset `json:"-" yaml:"-"`
}

// HasVoice reports whether the entry carries any voice data.
func (e DialogueEntry) HasVoice() bool {
	return e.VoiceClip != nil || strings.TrimSpace(e.VoiceClipName) != ""
}

// Category groups assets by what they are used for.
type Category string

const (
	CategoryBackground Category = "background"
	CategoryCharacter  Category = "character"
	CategoryMusic      Category = "music"
	CategorySFX        Category = "sfx"
	CategoryVoice      Category = "voice"
)

// Categories lists all asset categories in dispatch order.
var Categories = []Category{CategoryBackground, CategoryCharacter, CategoryMusic, CategorySFX, CategoryVoice}

// Asset is a resolved resource. Duration is set for audio, Width/Height for images.
type Asset struct {
	Category Category      `json:"category"`
	Key      string        `json:"key"`
	Path     string        `json:"path,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
}

// Name returns the key, or "" for a nil asset.
func (a *Asset) Name() string {
	if a == nil {
		return ""
	}
	return a.Key
}
