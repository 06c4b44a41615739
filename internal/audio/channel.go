/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package audio holds the playback port for music and voice and the music deck
// that layers crossfades and ducking on top of one channel.
package audio

import (
	"log/slog"
	"sync"
	"time"

	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
)

// Channel is one independently controlled audio source.
type Channel interface {
	Play(clip *domain.Asset, loop bool)
	Stop()
	// SetVolume clamps v to [0,1].
	SetVolume(v float64)
	Volume() float64
	IsPlaying() bool
}

// Clock returns the current time of whatever drives playback.
type Clock func() time.Duration

// SimChannel is a Channel that plays nothing but keeps accurate state: a
// non-looping clip stops playing once its duration has elapsed on the clock.
// Clips with unknown duration end immediately.
type SimChannel struct {
	name  string
	clock Clock
	log   *slog.Logger

	mu      sync.Mutex
	clip    *domain.Asset
	loop    bool
	started time.Duration
	volume  float64
	plays   []string
	stops   int
}

// NewSimChannel returns a silent channel at full volume.
func NewSimChannel(name string, clock Clock, l *slog.Logger) *SimChannel {
	return &SimChannel{name: name, clock: clock, log: vlog.OrDiscard(l), volume: 1}
}

func (c *SimChannel) Play(clip *domain.Asset, loop bool) {
	if clip == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clip, c.loop, c.started = clip, loop, c.clock()
	c.plays = append(c.plays, clip.Key)
	c.log.Debug("play", slog.String("channel", c.name), slog.String("clip", clip.Key),
		slog.Bool("loop", loop), slog.Duration("length", clip.Duration))
}

func (c *SimChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clip != nil {
		c.log.Debug("stop", slog.String("channel", c.name), slog.String("clip", c.clip.Key))
		c.stops++
	}
	c.clip = nil
}

func (c *SimChannel) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = Clamp(v)
	c.mu.Unlock()
}

func (c *SimChannel) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *SimChannel) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clip == nil {
		return false
	}
	if c.loop {
		return true
	}
	return c.clock()-c.started < c.clip.Duration
}

// Clip returns the key of the loaded clip, playing or not.
func (c *SimChannel) Clip() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clip.Name()
}

// Plays returns every clip key passed to Play, in order.
func (c *SimChannel) Plays() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.plays...)
}

// Stops counts Stop calls that stopped a loaded clip.
func (c *SimChannel) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// Clamp limits v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
