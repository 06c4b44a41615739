/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import (
	"fmt"

	"vnplayer/internal/domain"
)

// State is the orchestrator state.
type State int

const (
	Idle State = iota
	Revealing
	AwaitingAdvance
	AwaitingName
	ChapterEnding
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Revealing:
		return "revealing"
	case AwaitingAdvance:
		return "awaiting-advance"
	case AwaitingName:
		return "awaiting-name"
	case ChapterEnding:
		return "chapter-ending"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Cursor is the playback position.
type Cursor struct {
	Chapter   *domain.Chapter
	Index     int
	Revealing bool
	MusicMemo string
}

// NamePrompter asks the player for a name out of band. The shell calls confirm
// on the goroutine that drives the session, once per request.
type NamePrompter interface {
	RequestName(confirm func(name string))
}

// NamePrompterFunc adapts a function to NamePrompter.
type NamePrompterFunc func(confirm func(name string))

func (f NamePrompterFunc) RequestName(confirm func(string)) { f(confirm) }

// Observer receives session events on the driving goroutine. Implementations
// must not call back into the session synchronously.
type Observer interface {
	ChapterStarted(ch *domain.Chapter)
	EntryShown(ch *domain.Chapter, index int, speaker, text string)
	StateChanged(from, to State)
	ChapterCompleted(ch *domain.Chapter)
	SessionFinished()
	NameConfirmed(name string)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ChapterStarted(*domain.Chapter)                  {}
func (NopObserver) EntryShown(*domain.Chapter, int, string, string) {}
func (NopObserver) StateChanged(State, State)                       {}
func (NopObserver) ChapterCompleted(*domain.Chapter)                {}
func (NopObserver) SessionFinished()                                {}
func (NopObserver) NameConfirmed(string)                            {}

// Observers fans events out in order. Nil entries are ignored.
type Observers []Observer

func (o Observers) ChapterStarted(ch *domain.Chapter) {
	for _, x := range o {
		if x != nil {
			x.ChapterStarted(ch)
		}
	}
}

func (o Observers) EntryShown(ch *domain.Chapter, i int, speaker, text string) {
	for _, x := range o {
		if x != nil {
			x.EntryShown(ch, i, speaker, text)
		}
	}
}

func (o Observers) StateChanged(from, to State) {
	for _, x := range o {
		if x != nil {
			x.StateChanged(from, to)
		}
	}
}

func (o Observers) ChapterCompleted(ch *domain.Chapter) {
	for _, x := range o {
		if x != nil {
			x.ChapterCompleted(ch)
		}
	}
}

func (o Observers) SessionFinished() {
	for _, x := range o {
		if x != nil {
			x.SessionFinished()
		}
	}
}

func (o Observers) NameConfirmed(name string) {
	for _, x := range o {
		if x != nil {
			x.NameConfirmed(name)
		}
	}
}
