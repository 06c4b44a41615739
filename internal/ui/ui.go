/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui is the desktop shell. The fyne implementation is compiled with
// -tags fyne (and cgo); other builds get a stub Run that explains how to
// enable it.
package ui

import (
	"vnplayer/internal/backlog"
	"vnplayer/internal/crash"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	"vnplayer/internal/playback"
)

// BuildFunc wires an engine around the shell's display, prompter and observer.
type BuildFunc func(d display.Display, p playback.NamePrompter, o playback.Observer) *playback.Engine

// Options configures Run.
type Options struct {
	Title   string
	Start   *domain.Chapter
	Build   BuildFunc
	Backlog *backlog.Backlog
	Crash   *crash.Context
}
