/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	HistoryFileName = "history.sqlite"

	// schemaVersion tracks the local SQLite schema of the history index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// HistoryPath returns the history database path inside dir.
func HistoryPath(dir string) string { return filepath.Join(dir, HistoryFileName) }

// History journals the lines shown during playback into an embedded SQLite
// database and searches them. It implements playback.Observer; observer
// methods run on the playback loop, so they only queue their writes. One
// goroutine applies them in order and logs failures. A full queue blocks the
// caller until the writer catches up.
type History struct {
	db      *sql.DB
	log     *slog.Logger
	now     func() time.Time
	session int64
	timeout time.Duration

	q     chan write
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

type write struct {
	op, q string
	args  []any
}

var _ playback.Observer = (*History)(nil)

// OpenHistory ensures dir/history.sqlite exists, enables WAL mode and brings the
// schema up to date.
func OpenHistory(dir string) (*History, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "history_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("history dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create history dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	path := HistoryPath(dir)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	for _, step := range []func(context.Context, *sql.DB) error{ensureMetaAndVersion, ensureHistorySchema, runMigrations} {
		if err := step(ctx, db); err != nil {
			_ = db.Close()
			l.Error("prepare history schema failed", slog.Any("err", err))
			return nil, err
		}
	}
	l.Info("history ready", slog.String("path", path))
	h := &History{
		db:      db,
		log:     applog.WithComponent("history"),
		now:     time.Now,
		timeout: 2 * time.Second,
		q:       make(chan write, 256),
		flush:   make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.loop()
	return h, nil
}

func (h *History) loop() {
	defer close(h.done)
	for {
		select {
		case w := <-h.q:
			h.apply(w)
		case ack := <-h.flush:
			h.drain()
			close(ack)
		case <-h.stop:
			h.drain()
			return
		}
	}
}

func (h *History) drain() {
	for {
		select {
		case w := <-h.q:
			h.apply(w)
		default:
			return
		}
	}
}

func (h *History) apply(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if _, err := h.db.ExecContext(ctx, w.q, w.args...); err != nil {
		h.log.Warn("history write failed", slog.String("op", w.op), slog.Any("err", err))
	}
}

// Flush waits until every write queued so far is applied or ctx is done.
func (h *History) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case h.flush <- ack:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close applies the queued writes and closes the database. Writes queued
// after Close are dropped.
func (h *History) Close() error {
	h.once.Do(func() { close(h.stop) })
	<-h.done
	return h.db.Close()
}

// DB exposes the underlying handle for maintenance commands.
func (h *History) DB() *sql.DB { return h.db }

// Session returns the current session ID, 0 before BeginSession.
func (h *History) Session() int64 { return h.session }

// BeginSession starts a new play session; subsequent lines are attributed to it.
func (h *History) BeginSession(ctx context.Context, manifest, player string) (int64, error) {
	res, err := h.db.ExecContext(ctx, `INSERT INTO sessions (manifest, player, started_at) VALUES (?, ?, ?)`,
		manifest, player, h.stamp())
	if err != nil {
		return 0, fmt.Errorf("begin session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	h.session = id
	return id, nil
}

func (h *History) stamp() string { return h.now().UTC().Format(time.RFC3339Nano) }

func (h *History) exec(op, q string, args ...any) {
	select {
	case <-h.stop:
		h.log.Debug("history closed, write dropped", slog.String("op", op))
	default:
		select {
		case h.q <- write{op: op, q: q, args: args}:
		case <-h.stop:
		}
	}
}

func (h *History) event(kind string, ch *domain.Chapter, detail string) {
	id := ""
	if ch != nil {
		id = ch.ID
	}
	h.exec("event", `INSERT INTO events (session_id, kind, chapter_id, detail, at) VALUES (?, ?, ?, ?, ?)`,
		nullSession(h.session), kind, id, detail, h.stamp())
}

func nullSession(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (h *History) ChapterStarted(ch *domain.Chapter) { h.event("chapter_started", ch, ch.Title) }

func (h *History) EntryShown(ch *domain.Chapter, index int, speaker, text string) {
	h.exec("line", `INSERT INTO lines (session_id, chapter_id, chapter_title, entry_index, speaker, text, shown_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullSession(h.session), ch.ID, ch.Title, index, speaker, text, h.stamp())
}

func (h *History) StateChanged(from, to playback.State) {}

func (h *History) ChapterCompleted(ch *domain.Chapter) { h.event("chapter_completed", ch, "") }

func (h *History) SessionFinished() {
	h.event("session_finished", nil, "")
	if h.session != 0 {
		h.exec("session_end", `UPDATE sessions SET finished_at=? WHERE id=?`, h.stamp(), h.session)
	}
}

func (h *History) NameConfirmed(name string) {
	h.event("name_confirmed", nil, name)
	if h.session != 0 {
		h.exec("session_player", `UPDATE sessions SET player=? WHERE id=?`, name, h.session)
	}
}

// Line is one journaled line.
type Line struct {
	ID           int64
	Session      int64
	ChapterID    string
	ChapterTitle string
	Entry        int
	Speaker      string
	Text         string
	ShownAt      time.Time
	Snippet      string
}

// HistoryQuery filters Search. An empty Text lists lines in journal order.
type HistoryQuery struct {
	Text      string
	Speaker   string
	ChapterID string
	Session   int64
	Limit     int
	Offset    int
}

// Search performs full-text search over journaled lines with optional filters.
func (h *History) Search(ctx context.Context, q HistoryQuery) ([]Line, error) {
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	cols := "l.id, COALESCE(l.session_id,0), l.chapter_id, l.chapter_title, l.entry_index, l.speaker, l.text, l.shown_at"
	if useFTS {
		sb.WriteString("SELECT " + cols + ", COALESCE(snippet(fts_lines, 0, '[', ']', '…', 10), '')\n")
		sb.WriteString("FROM fts_lines JOIN lines l ON fts_lines.rowid = l.id\n")
		sb.WriteString("WHERE fts_lines MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT " + cols + ", ''\nFROM lines l\nWHERE 1=1\n")
	}
	if s := strings.TrimSpace(q.Speaker); s != "" {
		sb.WriteString(" AND lower(l.speaker) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.ChapterID); s != "" {
		sb.WriteString(" AND l.chapter_id = ?\n")
		args = append(args, s)
	}
	if q.Session > 0 {
		sb.WriteString(" AND l.session_id = ?\n")
		args = append(args, q.Session)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY l.id\nLIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := h.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var r Line
		var at string
		if err := rows.Scan(&r.ID, &r.Session, &r.ChapterID, &r.ChapterTitle, &r.Entry, &r.Speaker, &r.Text, &at, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.ShownAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of journaled lines.
func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lines: %w", err)
	}
	return n, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Keep the existing schema for migrations.
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureHistorySchema creates the schema-1 tables and FTS structures.
func ensureHistorySchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id          INTEGER PRIMARY KEY,
			manifest    TEXT NOT NULL,
			player      TEXT,
			started_at  TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS lines (
			id            INTEGER PRIMARY KEY,
			session_id    INTEGER REFERENCES sessions(id) ON DELETE CASCADE,
			chapter_id    TEXT    NOT NULL,
			chapter_title TEXT    NOT NULL,
			entry_index   INTEGER NOT NULL,
			speaker       TEXT    NOT NULL,
			text          TEXT    NOT NULL,
			shown_at      TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lines_chapter ON lines(chapter_id, entry_index);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_lines USING fts5(
			text,
			speaker,
			content='lines',
			content_rowid='id',
			tokenize = 'unicode61'
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY,
			session_id INTEGER REFERENCES sessions(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			chapter_id TEXT,
			detail     TEXT,
			at         TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS lines_ai AFTER INSERT ON lines BEGIN
			INSERT INTO fts_lines(rowid, text, speaker) VALUES (new.id, new.text, new.speaker);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS lines_ad AFTER DELETE ON lines BEGIN
			INSERT INTO fts_lines(fts_lines, rowid, text, speaker) VALUES ('delete', old.id, old.text, old.speaker);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_lines_session ON lines(session_id);`,
				`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, kind);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		if next == 2 {
			// Best effort; a failed optimize only costs search speed.
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_lines(fts_lines) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}
