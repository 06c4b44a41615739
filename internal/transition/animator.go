/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package transition animates float channels (layer opacity, volume factors)
// linearly over scheduler time and composes them into overlay swaps.
package transition

import (
	"log/slog"
	"math"
	"time"

	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
	"vnplayer/internal/sched"
)

// Target is an animatable value in [0,1]. Animations on targets with the same
// key supersede each other.
type Target interface {
	Key() string
	Get() float64
	Set(v float64)
}

type prop struct {
	key string
	get func() float64
	set func(float64)
}

func (p prop) Key() string   { return p.key }
func (p prop) Get() float64  { return p.get() }
func (p prop) Set(v float64) { p.set(v) }

// Prop builds a Target from a getter and setter pair.
func Prop(key string, get func() float64, set func(float64)) Target {
	return prop{key: key, get: get, set: set}
}

// Animator owns layer opacity and every running animation.
type Animator struct {
	s       *sched.Scheduler
	d       display.Display
	log     *slog.Logger
	alpha   map[display.Layer]float64
	running map[string]*sched.Handle
}

// New returns an animator drawing through d. All layers start transparent.
func New(s *sched.Scheduler, d display.Display, l *slog.Logger) *Animator {
	return &Animator{
		s:       s,
		d:       d,
		log:     vlog.OrDiscard(l),
		alpha:   map[display.Layer]float64{},
		running: map[string]*sched.Handle{},
	}
}

type layerTarget struct {
	a *Animator
	l display.Layer
}

func (t layerTarget) Key() string  { return "layer:" + t.l.String() }
func (t layerTarget) Get() float64 { return t.a.alpha[t.l] }
func (t layerTarget) Set(v float64) {
	t.a.alpha[t.l] = v
	t.a.d.SetLayerAlpha(t.l, v)
}

// LayerAlpha returns the opacity target of a layer.
func (a *Animator) LayerAlpha(l display.Layer) Target { return layerTarget{a: a, l: l} }

// Alpha returns the current opacity of a layer.
func (a *Animator) Alpha(l display.Layer) float64 { return a.alpha[l] }

// SetAlpha stops any animation on the layer and applies v at once.
func (a *Animator) SetAlpha(l display.Layer, v float64) {
	t := a.LayerAlpha(l)
	a.stop(t.Key())
	t.Set(clamp01(v))
}

// SetImage puts asset on a layer without animating.
func (a *Animator) SetImage(l display.Layer, asset *domain.Asset) { a.d.SetLayerImage(l, asset) }

// Busy reports whether an animation on t is in flight.
func (a *Animator) Busy(t Target) bool {
	h := a.running[t.Key()]
	return h.Live()
}

func (a *Animator) stop(key string) bool {
	h, ok := a.running[key]
	if !ok {
		return false
	}
	delete(a.running, key)
	return h.Cancel()
}

// Fade moves t linearly from its current value to `to` over d of scheduler time.
// A fade already running on t is cancelled; the new one starts from the value it
// reached and its duration shrinks with the remaining distance so speed stays
// continuous. then runs only when the fade completes on its own.
func (a *Animator) Fade(t Target, to float64, d time.Duration, then func()) *sched.Handle {
	key := t.Key()
	to = clamp01(to)
	from := t.Get()
	if a.stop(key) && d > 0 {
		d = time.Duration(float64(d) * math.Min(1, math.Abs(to-from)))
	}
	start := a.s.Now()
	var h *sched.Handle
	h = a.s.Start(key, sched.Func(func(now time.Duration) bool {
		elapsed := now - start
		if d <= 0 || elapsed >= d {
			t.Set(to)
			if h != nil && a.running[key] == h {
				delete(a.running, key)
			}
			if then != nil {
				then()
			}
			return true
		}
		t.Set(from + (to-from)*float64(elapsed)/float64(d))
		return false
	}))
	if h.Live() {
		a.running[key] = h
	}
	return h
}

// FadeLayer is Fade on a layer's opacity.
func (a *Animator) FadeLayer(l display.Layer, to float64, d time.Duration, then func()) *sched.Handle {
	return a.Fade(a.LayerAlpha(l), to, d, then)
}

// Swap crossfades base to asset through overlay: the overlay gets the asset and
// fades in, then base takes the asset at full opacity and the overlay is reset.
// A swap already running on the same overlay is superseded and the new one
// continues from the overlay's current opacity.
func (a *Animator) Swap(base, overlay display.Layer, asset *domain.Asset, d time.Duration, then func()) *sched.Handle {
	a.d.SetLayerImage(overlay, asset)
	a.log.Debug("swap", slog.String("layer", base.String()), slog.String("asset", asset.Name()), slog.Duration("d", d))
	return a.FadeLayer(overlay, 1, d, func() {
		a.d.SetLayerImage(base, asset)
		a.SetAlpha(base, 1)
		a.SetAlpha(overlay, 0)
		a.d.SetLayerImage(overlay, nil)
		if then != nil {
			then()
		}
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
