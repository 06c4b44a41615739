/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vnplayer/internal/assets"
	"vnplayer/internal/backlog"
	"vnplayer/internal/config"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/script"
	"vnplayer/internal/storage"
	"vnplayer/internal/telemetry"
)

// story is a loaded manifest with its linked chapter graph.
type story struct {
	Path     string
	Manifest script.Manifest
	Graph    *storage.Graph
	Assets   *assets.FS
}

// assetsDir picks the assets root: the flag, else the configured directory.
// Relative configured paths are taken relative to the manifest.
func assetsDir(cfg config.AppConfig, manifest, flag string) string {
	if flag != "" {
		return flag
	}
	dir := cfg.General.AssetsDir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(manifest), dir)
}

func loadStory(path, assetsRoot string) (*story, error) {
	m, err := storage.Load(path)
	if err != nil {
		return nil, err
	}
	fs := assets.NewFS(assetsRoot)
	g, err := storage.Link(m, fs)
	if err != nil {
		return nil, err
	}
	return &story{Path: path, Manifest: m, Graph: g, Assets: fs}, nil
}

// start returns the chapter to begin with: id when given, else the manifest's start.
func (s *story) start(id string) (*domain.Chapter, error) {
	if id == "" {
		if s.Graph.Start == nil {
			return nil, fmt.Errorf("%s: %w", s.Path, storage.ErrUnknownChapter)
		}
		return s.Graph.Start, nil
	}
	ch := s.Graph.Find(id)
	if ch == nil {
		return nil, fmt.Errorf("chapter %q: %w", id, storage.ErrUnknownChapter)
	}
	return ch, nil
}

// name is the manifest's name in the history journal and the backend.
func (s *story) name() string { return manifestName(s.Path) }

func manifestName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fast shortens every pacing duration for quick read-throughs.
func fast(t playback.Tuning) playback.Tuning {
	const factor = 10
	scale := func(d *time.Duration) {
		if *d > 0 {
			*d /= factor
			if *d < time.Millisecond {
				*d = time.Millisecond
			}
		}
	}
	for _, d := range []*time.Duration{
		&t.Session.EndDwell, &t.Session.DialogueBoxFade,
		&t.Reveal.Speed, &t.Reveal.PreRoll, &t.Reveal.MinDelay, &t.Reveal.MaxDelay, &t.Reveal.TailPad,
		&t.Cue.BackgroundFade, &t.Cue.CharacterFade,
		&t.Deck.Crossfade, &t.Deck.FadeOut, &t.Deck.DuckRamp, &t.Deck.RestoreRamp,
	} {
		scale(d)
	}
	return t
}

// cursor remembers the last shown position for crash reports. The playback
// loop writes it while a crashing goroutine may read it.
type cursor struct {
	playback.NopObserver
	mu      sync.Mutex
	chapter string
	entry   int
}

func (c *cursor) ChapterStarted(ch *domain.Chapter) {
	c.mu.Lock()
	c.chapter, c.entry = ch.ID, 0
	c.mu.Unlock()
}

func (c *cursor) EntryShown(ch *domain.Chapter, index int, _, _ string) {
	c.mu.Lock()
	c.chapter, c.entry = ch.ID, index
	c.mu.Unlock()
}

func (c *cursor) Position() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chapter, c.entry
}

// preload resolves every referenced asset up front so cue dispatch on the
// playback loop only reads the cache. Missing assets are logged and skipped.
func (s *story) preload(ctx context.Context) error {
	if s.Assets == nil {
		return nil
	}
	refs := assets.Refs(s.Graph.Chapters...)
	missing, err := s.Assets.Preload(ctx, refs, 8)
	if err != nil {
		return fmt.Errorf("preload assets: %w", err)
	}
	l := applog.WithComponent("assets")
	for _, r := range missing {
		l.Warn("asset missing", slog.String("category", string(r.Category)), slog.String("key", r.Key))
	}
	l.Debug("assets preloaded", slog.Int("refs", len(refs)), slog.Int("missing", len(missing)))
	return nil
}

// session bundles the observers every shell attaches besides its own.
type session struct {
	Backlog   *backlog.Backlog
	History   *storage.History
	Telemetry *telemetry.Client
	Cursor    *cursor
}

// openSession warms the asset cache and prepares backlog, history journal and
// telemetry for a play of s. historyDir may be empty to skip journaling.
func (e *env) openSession(ctx context.Context, s *story, historyDir, player string) (*session, error) {
	if err := s.preload(ctx); err != nil {
		return nil, err
	}
	ss := &session{
		Backlog:   backlog.New(backlog.Config{MaxBytes: 1 << 20}),
		Telemetry: telemetry.New(telemetry.FromEnvOptIn(e.cfg.General.TelemetryOptIn)),
		Cursor:    &cursor{},
	}
	if historyDir != "" {
		h, err := storage.OpenHistory(historyDir)
		if err != nil {
			ss.Telemetry.Close()
			return nil, err
		}
		if _, err := h.BeginSession(ctx, s.name(), player); err != nil {
			_ = h.Close()
			ss.Telemetry.Close()
			return nil, err
		}
		ss.History = h
	}
	e.crash.Manifest = s.Path
	e.crash.Position = ss.Cursor.Position
	return ss, nil
}

// Observers returns the session's observers followed by extra.
func (ss *session) Observers(extra ...playback.Observer) playback.Observers {
	obs := playback.Observers{ss.Backlog, ss.Cursor, telemetry.NewObserver(ss.Telemetry)}
	if ss.History != nil {
		obs = append(obs, ss.History)
	}
	return append(obs, extra...)
}

func (ss *session) Close() {
	bytes, chapters, lines := ss.Backlog.Stats()
	applog.WithComponent("cli").Debug("session closed", slog.Int("backlog_bytes", bytes),
		slog.Int("backlog_chapters", chapters), slog.Int("backlog_lines", lines))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ss.Telemetry.Flush(ctx)
	ss.Telemetry.Close()
	if ss.History != nil {
		if err := ss.History.Close(); err != nil {
			applog.WithComponent("cli").Warn("close history failed", slog.Any("err", err))
		}
	}
}

// engineConfig is the shared part of every shell's engine.
func (e *env) engineConfig(s *story, quick bool) playback.EngineConfig {
	t := e.cfg.Engine()
	if quick {
		t = fast(t)
	}
	return playback.EngineConfig{
		Resolver: s.Assets,
		Tuning:   t,
		Logger:   applog.WithComponent("engine"),
	}
}

// applyName sets the starting player name: the flag, else the saved one.
func (e *env) applyName(sess *playback.Session, flag string) error {
	name := flag
	if name == "" {
		name = e.cfg.Player.InitialName()
	}
	if name == "" {
		return nil
	}
	if err := sess.SetPlayerName(name); err != nil {
		return fmt.Errorf("player name %q: %w", name, err)
	}
	return nil
}
