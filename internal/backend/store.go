/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend keeps chapter manifests in Postgres so several players can
// share one library of stories. Migrations are embedded and applied on Open.
package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "vnplayer/internal/log"
	"vnplayer/internal/script"
	"vnplayer/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a manifest or chapter is not in the store.
var ErrNotFound = errors.New("not found in store")

// Store is a Postgres-backed manifest library.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: db, log: applog.WithComponent("backend")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// migrate applies embedded SQL migrations in filename order, recording each
// in schema_migrations.
func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		s.log.Info("applying migration", slog.String("file", fname))
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// Import replaces the stored manifest called name with m in one transaction.
func (s *Store) Import(ctx context.Context, name string, m script.Manifest) error {
	if err := storage.Check(m); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifests WHERE name=$1`, name); err != nil {
		return fmt.Errorf("clear manifest: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO manifests(name, start_chapter) VALUES($1, $2)`, name, m.StartID()); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	for i, ch := range m.Chapters {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chapters(manifest, id, ordinal, title, number, next_id, voice_by_index) VALUES($1,$2,$3,$4,$5,$6,$7)`,
			name, ch.ID, i, ch.Title, ch.Number, ch.Next, ch.VoiceByIndex); err != nil {
			return fmt.Errorf("insert chapter %s: %w", ch.ID, err)
		}
		for j, e := range ch.Entries {
			if _, err := tx.ExecContext(ctx, `INSERT INTO entries(manifest, chapter_id, idx, text, speaker, background_image, character_sprite, hide_character, background_music, sound_effect, voice_clip, voice_clip_name, sync_voice) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
				name, ch.ID, j, e.Text, e.SpeakerName, e.BackgroundImage, e.CharacterSprite, e.HideCharacter, e.BackgroundMusic, e.SoundEffect, e.VoicePath, e.VoiceClipName, e.SyncVoiceWithText); err != nil {
				return fmt.Errorf("insert entry %s/%d: %w", ch.ID, j, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.log.Info("manifest imported", slog.String("name", name), slog.Int("chapters", len(m.Chapters)))
	return nil
}

// Load reads the chapters reachable from start (the manifest's start chapter
// when empty) by following next links, in play order.
func (s *Store) Load(ctx context.Context, name, start string) (script.Manifest, error) {
	var m script.Manifest
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT start_chapter FROM manifests WHERE name=$1`, name).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("manifest %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if start == "" {
		start = stored
	}
	m.Start = start
	seen := map[string]bool{}
	for id := start; id != "" && !seen[id]; {
		seen[id] = true
		ch, err := s.chapter(ctx, name, id)
		if err != nil {
			return m, err
		}
		m.Chapters = append(m.Chapters, ch)
		id = ch.Next
	}
	return m, nil
}

func (s *Store) chapter(ctx context.Context, name, id string) (script.Chapter, error) {
	ch := script.Chapter{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT title, number, next_id, voice_by_index FROM chapters WHERE manifest=$1 AND id=$2`, name, id).
		Scan(&ch.Title, &ch.Number, &ch.Next, &ch.VoiceByIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return ch, fmt.Errorf("chapter %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ch, fmt.Errorf("read chapter: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT text, speaker, background_image, character_sprite, hide_character, background_music, sound_effect, voice_clip, voice_clip_name, sync_voice FROM entries WHERE manifest=$1 AND chapter_id=$2 ORDER BY idx`, name, id)
	if err != nil {
		return ch, fmt.Errorf("read entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ch.Entries = []script.Entry{}
	for rows.Next() {
		var e script.Entry
		d := &e.DialogueEntry
		if err := rows.Scan(&d.Text, &d.SpeakerName, &d.BackgroundImage, &d.CharacterSprite, &d.HideCharacter, &d.BackgroundMusic, &d.SoundEffect, &e.VoicePath, &d.VoiceClipName, &d.SyncVoiceWithText); err != nil {
			return ch, fmt.Errorf("scan entry: %w", err)
		}
		ch.Entries = append(ch.Entries, e)
	}
	return ch, rows.Err()
}

// Summary describes one stored manifest.
type Summary struct {
	Name       string
	Start      string
	Chapters   int
	ImportedAt time.Time
}

// List returns the stored manifests, newest import first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.name, m.start_chapter, m.imported_at, COUNT(c.id)
		FROM manifests m LEFT JOIN chapters c ON c.manifest = m.name
		GROUP BY m.name, m.start_chapter, m.imported_at ORDER BY m.imported_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Name, &sm.Start, &sm.ImportedAt, &sm.Chapters); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Hit is one search result.
type Hit struct {
	Manifest string
	Chapter  string
	Entry    int
	Speaker  string
	Snippet  string
}

// Search runs a full-text query over stored dialogue.
func (s *Store) Search(ctx context.Context, name, text string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 100
	}
	var args []any
	var b strings.Builder
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	q := place(text)
	b.WriteString("SELECT e.manifest, e.chapter_id, e.idx, e.speaker, ")
	b.WriteString("COALESCE(ts_headline('simple', e.text, plainto_tsquery('simple', " + q + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
	b.WriteString("FROM entries e JOIN chapters c ON c.manifest = e.manifest AND c.id = e.chapter_id ")
	b.WriteString("WHERE e.search_vector @@ plainto_tsquery('simple', " + q + ") ")
	if name != "" {
		b.WriteString("AND e.manifest = " + place(name) + " ")
	}
	b.WriteString("ORDER BY e.manifest, c.ordinal, e.idx LIMIT " + place(limit))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Manifest, &h.Chapter, &h.Entry, &h.Speaker, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Graph loads and links a stored manifest for playback.
func (s *Store) Graph(ctx context.Context, name, start string, src storage.AssetSource) (*storage.Graph, error) {
	m, err := s.Load(ctx, name, start)
	if err != nil {
		return nil, err
	}
	return storage.Link(m, src)
}
