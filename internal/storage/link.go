/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"vnplayer/internal/assets"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/script"
)

// AssetSource resolves direct voice references and lists per-chapter voice
// folders. *assets.FS implements it.
type AssetSource interface {
	Open(cat domain.Category, path string) (*domain.Asset, error)
	ListIn(cat domain.Category, sub string) ([]string, error)
}

// Graph is a linked set of chapters.
type Graph struct {
	Start    *domain.Chapter
	Chapters []*domain.Chapter
}

// Find returns the chapter with the given ID, or nil.
func (g *Graph) Find(id string) *domain.Chapter {
	for _, ch := range g.Chapters {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// Link builds domain chapters from m and links each to its successor. src may
// be nil, in which case direct voice references and voiceByIndex are ignored.
// A direct voice reference that cannot be opened leaves VoiceClip nil so the
// entry falls back to its voiceClipName.
func Link(m script.Manifest, src AssetSource) (*Graph, error) {
	if err := Check(m); err != nil {
		return nil, err
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "link")
	g := &Graph{Chapters: make([]*domain.Chapter, 0, len(m.Chapters))}
	byID := make(map[string]*domain.Chapter, len(m.Chapters))
	for _, sc := range m.Chapters {
		sc.Entries = append([]script.Entry(nil), sc.Entries...)
		if sc.VoiceByIndex && src != nil {
			keys, err := src.ListIn(domain.CategoryVoice, sc.ID)
			if err != nil {
				l.Warn("list voice folder failed", slog.String("chapter", sc.ID), slog.Any("err", err))
			}
			AssignVoices(&sc, keys)
		}
		ch := &domain.Chapter{ID: sc.ID, Title: sc.Title, Number: sc.Number, Entries: make([]domain.DialogueEntry, len(sc.Entries))}
		for i, e := range sc.Entries {
			de := e.DialogueEntry
			if e.VoicePath != "" && src != nil {
				a, err := src.Open(domain.CategoryVoice, e.VoicePath)
				switch {
				case errors.Is(err, assets.ErrNotFound):
					l.Warn("voice clip not found", slog.String("chapter", sc.ID), slog.Int("entry", i), slog.String("path", e.VoicePath))
				case err != nil:
					l.Warn("voice clip open failed", slog.String("path", e.VoicePath), slog.Any("err", err))
				default:
					de.VoiceClip = a
				}
			}
			ch.Entries[i] = de
		}
		g.Chapters = append(g.Chapters, ch)
		byID[ch.ID] = ch
	}
	for i, sc := range m.Chapters {
		if sc.Next != "" {
			g.Chapters[i].Next = byID[sc.Next]
		}
	}
	g.Start = byID[m.StartID()]
	return g, nil
}

// AssignVoices sets voiceClipName on the entries of ch from voice keys whose
// file name is a 1-based entry number ("ch1/001" goes to entry 0). Entries
// that already carry voice data are left alone. It returns the number of
// entries assigned.
func AssignVoices(ch *script.Chapter, keys []string) int {
	n := 0
	for _, k := range keys {
		idx, ok := voiceIndex(k)
		if !ok || idx >= len(ch.Entries) {
			continue
		}
		e := &ch.Entries[idx]
		if e.VoiceClipName != "" || e.VoicePath != "" {
			continue
		}
		e.VoiceClipName = k
		n++
	}
	return n
}

// voiceIndex parses the leading digits of the key's base name.
func voiceIndex(key string) (int, bool) {
	base := path.Base(key)
	end := strings.IndexFunc(base, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, false
	}
	if end > 0 {
		base = base[:end]
	}
	n, err := strconv.Atoi(base)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
