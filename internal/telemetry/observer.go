/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"vnplayer/internal/domain"
	"vnplayer/internal/playback"
)

// Sink receives named events; *Client implements it.
type Sink interface {
	Event(name string, props map[string]any)
}

// Observer turns playback progress into anonymous usage events. Only chapter
// numbers and counts are sent, never dialogue text, IDs or the player's name.
type Observer struct {
	playback.NopObserver
	sink  Sink
	shown int
}

var _ playback.Observer = (*Observer)(nil)

// NewObserver returns an observer that reports to sink.
func NewObserver(sink Sink) *Observer { return &Observer{sink: sink} }

func (o *Observer) ChapterStarted(ch *domain.Chapter) {
	o.shown = 0
	o.sink.Event("chapter_started", map[string]any{"chapter": ch.Number, "entries": ch.Len()})
}

func (o *Observer) EntryShown(*domain.Chapter, int, string, string) { o.shown++ }

func (o *Observer) ChapterCompleted(ch *domain.Chapter) {
	o.sink.Event("chapter_completed", map[string]any{"chapter": ch.Number, "shown": o.shown})
}

func (o *Observer) SessionFinished() { o.sink.Event("session_finished", nil) }

func (o *Observer) NameConfirmed(string) { o.sink.Event("name_confirmed", nil) }
