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
	"strings"
	"testing"
	"time"

	"vnplayer/internal/domain"
)

func openTestHistory(t *testing.T, dir string) *History {
	t.Helper()
	h, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHistoryJournalsAndSearches(t *testing.T) {
	ctx := context.Background()
	h := openTestHistory(t, t.TempDir())
	h.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	sid, err := h.BeginSession(ctx, "story.json", "Player")
	if err != nil || sid == 0 {
		t.Fatalf("BeginSession: %d %v", sid, err)
	}
	ch := &domain.Chapter{ID: "ch1", Title: "Arrival"}
	h.ChapterStarted(ch)
	h.EntryShown(ch, 0, "ALICE", "The lantern flickers in the dark.")
	h.EntryShown(ch, 1, "BOB", "Hold the lantern higher.")
	h.EntryShown(ch, 2, "", "Silence.")
	h.NameConfirmed("Mika")
	h.ChapterCompleted(ch)
	h.SessionFinished()
	if err := h.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	n, err := h.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	res, err := h.Search(ctx, HistoryQuery{Text: "lantern"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 hits, got %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[lantern]") {
		t.Fatalf("expected highlighted snippet, got %q", res[0].Snippet)
	}
	if res[0].Session != sid || res[0].ChapterTitle != "Arrival" || !res[0].ShownAt.Equal(h.now()) {
		t.Fatalf("unexpected row: %+v", res[0])
	}
	res, err = h.Search(ctx, HistoryQuery{Text: "lantern", Speaker: "bob"})
	if err != nil || len(res) != 1 || res[0].Entry != 1 {
		t.Fatalf("speaker filter: %+v %v", res, err)
	}
	res, err = h.Search(ctx, HistoryQuery{ChapterID: "ch1", Limit: 2, Offset: 1})
	if err != nil || len(res) != 2 || res[0].Entry != 1 {
		t.Fatalf("scan with paging: %+v %v", res, err)
	}

	var player, finished string
	if err := h.DB().QueryRowContext(ctx, `SELECT player, COALESCE(finished_at,'') FROM sessions WHERE id=?`, sid).Scan(&player, &finished); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if player != "Mika" || finished == "" {
		t.Fatalf("session not updated: player=%q finished=%q", player, finished)
	}
	var events int
	if err := h.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id=?`, sid).Scan(&events); err != nil || events != 4 {
		t.Fatalf("events = %d, %v", events, err)
	}
}

func TestHistoryReopenKeepsSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	h.EntryShown(&domain.Chapter{ID: "a"}, 0, "", "kept")
	_ = h.Close()

	h2 := openTestHistory(t, dir)
	var v int
	if err := h2.DB().QueryRow(`SELECT schema FROM version WHERE id=1`).Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d, %v", v, err)
	}
	if n, _ := h2.Count(context.Background()); n != 1 {
		t.Fatalf("lines lost on reopen: %d", n)
	}
}

func TestOpenHistoryRequiresDir(t *testing.T) {
	if _, err := OpenHistory("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestHistoryWritesDoNotBlockTheCaller(t *testing.T) {
	ctx := context.Background()
	h := openTestHistory(t, t.TempDir())
	h.timeout = 10 * time.Second

	// Hold the only connection so the writer stalls.
	conn, err := h.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	ch := &domain.Chapter{ID: "ch1", Title: "Arrival"}
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 20; i++ {
			h.EntryShown(ch, i, "", "line")
		}
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("EntryShown waited for the database")
	}
	_ = conn.Close()

	if err := h.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, err := h.Count(ctx); err != nil || n != 20 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestHistoryCloseAppliesQueuedWrites(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	for i := 0; i < 5; i++ {
		h.EntryShown(&domain.Chapter{ID: "a"}, i, "", "queued")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// dropped, not a panic
	h.EntryShown(&domain.Chapter{ID: "a"}, 9, "", "late")

	h2 := openTestHistory(t, dir)
	if n, _ := h2.Count(context.Background()); n != 5 {
		t.Fatalf("lines after close = %d", n)
	}
}
