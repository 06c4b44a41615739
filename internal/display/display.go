/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package display defines the port the playback engine draws through.
package display

import (
	"fmt"
	"sync"

	"vnplayer/internal/domain"
)

// Layer names a compositing layer. Overlay layers sit directly above their base.
type Layer int

const (
	Background Layer = iota
	BackgroundOverlay
	Character
	CharacterOverlay
	DialogueBox
)

var layerNames = [...]string{"background", "background-overlay", "character", "character-overlay", "dialogue-box"}

func (l Layer) String() string {
	if l < 0 || int(l) >= len(layerNames) {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// Layers lists every layer bottom to top.
var Layers = []Layer{Background, BackgroundOverlay, Character, CharacterOverlay, DialogueBox}

// Display is what the engine needs from a renderer. Calls arrive on the
// scheduler goroutine; implementations that render elsewhere must copy values.
type Display interface {
	SetText(s string)
	SetSpeakerName(s string)
	SetLayerAlpha(layer Layer, alpha float64)
	// SetLayerImage shows asset on layer; nil clears it.
	SetLayerImage(layer Layer, asset *domain.Asset)
}

// Op is one recorded display call.
type Op struct {
	Kind  string // text, speaker, alpha, image
	Layer Layer
	Text  string
	Alpha float64
	Image string
}

func (o Op) String() string {
	switch o.Kind {
	case "text", "speaker":
		return fmt.Sprintf("%s %q", o.Kind, o.Text)
	case "alpha":
		return fmt.Sprintf("alpha %s %.3f", o.Layer, o.Alpha)
	default:
		return fmt.Sprintf("image %s %q", o.Layer, o.Image)
	}
}

// Recorder keeps the latest state of every field plus the ordered call log.
// It is safe for concurrent reads while the engine writes.
type Recorder struct {
	mu      sync.Mutex
	text    string
	speaker string
	alpha   map[Layer]float64
	image   map[Layer]string
	ops     []Op
	keepOps bool
}

// NewRecorder returns a recorder with every layer at alpha 0 and no images.
// With keepOps the full call log is retained.
func NewRecorder(keepOps bool) *Recorder {
	return &Recorder{alpha: map[Layer]float64{}, image: map[Layer]string{}, keepOps: keepOps}
}

func (r *Recorder) SetText(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = s
	r.add(Op{Kind: "text", Text: s})
}

func (r *Recorder) SetSpeakerName(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaker = s
	r.add(Op{Kind: "speaker", Text: s})
}

func (r *Recorder) SetLayerAlpha(layer Layer, a float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alpha[layer] = a
	r.add(Op{Kind: "alpha", Layer: layer, Alpha: a})
}

func (r *Recorder) SetLayerImage(layer Layer, asset *domain.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[layer] = asset.Name()
	r.add(Op{Kind: "image", Layer: layer, Image: asset.Name()})
}

func (r *Recorder) add(op Op) {
	if r.keepOps {
		r.ops = append(r.ops, op)
	}
}

// Snapshot is a copy of the recorder's current state.
type Snapshot struct {
	Text    string             `json:"text"`
	Speaker string             `json:"speaker"`
	Alpha   map[string]float64 `json:"alpha"`
	Image   map[string]string  `json:"image"`
}

// Snapshot copies the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{Text: r.text, Speaker: r.speaker, Alpha: map[string]float64{}, Image: map[string]string{}}
	for _, l := range Layers {
		s.Alpha[l.String()] = r.alpha[l]
		s.Image[l.String()] = r.image[l]
	}
	return s
}

func (r *Recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

func (r *Recorder) Speaker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaker
}

func (r *Recorder) Alpha(l Layer) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alpha[l]
}

func (r *Recorder) Image(l Layer) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image[l]
}

// Ops returns a copy of the call log, optionally filtered by kind.
func (r *Recorder) Ops(kind string) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, 0, len(r.ops))
	for _, op := range r.ops {
		if kind == "" || op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Reset clears the call log but keeps state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}

type multi []Display

// Multi fans every call out to ds in order. Nil entries are skipped.
func Multi(ds ...Display) Display {
	out := make(multi, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (m multi) SetText(s string) {
	for _, d := range m {
		d.SetText(s)
	}
}

func (m multi) SetSpeakerName(s string) {
	for _, d := range m {
		d.SetSpeakerName(s)
	}
}

func (m multi) SetLayerAlpha(l Layer, a float64) {
	for _, d := range m {
		d.SetLayerAlpha(l, a)
	}
}

func (m multi) SetLayerImage(l Layer, a *domain.Asset) {
	for _, d := range m {
		d.SetLayerImage(l, a)
	}
}
