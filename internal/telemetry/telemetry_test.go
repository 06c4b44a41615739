/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vnplayer/internal/domain"
)

type collector struct {
	mu      sync.Mutex
	batches []batch
	crashes []string
	status  int
}

func (c *collector) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var b batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		c.mu.Lock()
		c.batches = append(c.batches, b)
		status := c.status
		c.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, string(b))
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (c *collector) snapshot() ([]batch, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]batch(nil), c.batches...), append([]string(nil), c.crashes...)
}

func TestFlushSendsOneBatch(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", FlushEvery: time.Hour})
	defer c.Close()

	c.Event("chapter_started", map[string]any{"chapter": 1})
	c.Event("chapter_completed", map[string]any{"chapter": 1, "shown": 4})
	c.Flush(context.Background())

	batches, _ := col.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	b := batches[0]
	if b.App != "vnplayer" || b.Run == "" || len(b.Events) != 2 {
		t.Fatalf("batch = %+v", b)
	}
	if b.Events[0].Name != "chapter_started" || b.Events[1].Props["shown"] != float64(4) {
		t.Fatalf("events = %+v", b.Events)
	}
	if sent, dropped := c.Stats(); sent != 2 || dropped != 0 {
		t.Fatalf("stats = %d sent, %d dropped", sent, dropped)
	}
}

func TestFullBatchGoesOutWithoutFlush(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", BatchSize: 2, FlushEvery: time.Hour})
	defer c.Close()

	c.Event("a", nil)
	c.Event("b", nil)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if batches, _ := col.snapshot(); len(batches) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("full batch was not sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseSendsPending(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", FlushEvery: time.Hour})
	c.Event("session_finished", nil)
	c.Close()
	if batches, _ := col.snapshot(); len(batches) != 1 || batches[0].Events[0].Name != "session_finished" {
		t.Fatalf("pending event lost on close: %+v", batches)
	}
	c.Close()
}

func TestFailedSendCountsDropped(t *testing.T) {
	col := collector{status: http.StatusServiceUnavailable}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", FlushEvery: time.Hour})
	defer c.Close()
	c.Event("a", nil)
	c.Flush(context.Background())
	if sent, dropped := c.Stats(); sent != 0 || dropped != 1 {
		t.Fatalf("stats = %d sent, %d dropped", sent, dropped)
	}
}

func TestDisabledClientSendsNothing(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"})
	if c.Enabled() {
		t.Fatalf("expected a disabled client")
	}
	c.Event("ignored", nil)
	c.Flush(context.Background())
	if err := c.UploadCrash([]byte("ignored")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	c.Close()

	on := New(Config{OptIn: true, EventsURL: srv.URL + "/events"})
	on.Event("", nil)
	on.Close()
	if batches, crashes := col.snapshot(); len(batches) != 0 || len(crashes) != 0 {
		t.Fatalf("requests sent: %d batches, %d crashes", len(batches), len(crashes))
	}
}

func TestUploadCrash(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash"})
	defer c.Close()
	if err := c.UploadCrash([]byte("STACKTRACE")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, crashes := col.snapshot(); len(crashes) != 1 || crashes[0] != "STACKTRACE" {
		t.Fatalf("crashes = %q", crashes)
	}

	t.Setenv("VNP_TELEMETRY_OPT_IN", "yes")
	t.Setenv("VNP_CRASH_UPLOAD_URL", srv.URL+"/crash")
	if err := UploadCrash([]byte("FROM ENV")); err != nil {
		t.Fatalf("env upload: %v", err)
	}
	if _, crashes := col.snapshot(); len(crashes) != 2 {
		t.Fatalf("env upload missing: %q", crashes)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("VNP_TELEMETRY_OPT_IN", "on")
	t.Setenv("VNP_TELEMETRY_URL", " http://127.0.0.1:1/events ")
	t.Setenv("VNP_CRASH_UPLOAD_URL", "")
	t.Setenv("VNP_TELEMETRY_TIMEOUT_MS", "100")
	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:1/events" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv = %+v", cfg)
	}
	if cfg.BatchSize != 20 || cfg.FlushEvery != 10*time.Second {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	t.Setenv("VNP_TELEMETRY_TIMEOUT_MS", "soon")
	if got := FromEnvOptIn(false); got.OptIn || got.Timeout != 1500*time.Millisecond {
		t.Fatalf("FromEnvOptIn = %+v", got)
	}
}

type sinkRecorder struct {
	names []string
	props []map[string]any
}

func (s *sinkRecorder) Event(name string, props map[string]any) {
	s.names = append(s.names, name)
	s.props = append(s.props, props)
}

func TestObserverSendsAnonymousEvents(t *testing.T) {
	rec := &sinkRecorder{}
	o := NewObserver(rec)
	ch := &domain.Chapter{ID: "secret-id", Title: "Secret", Number: 3, Entries: make([]domain.DialogueEntry, 2)}
	o.ChapterStarted(ch)
	o.EntryShown(ch, 0, "ALICE", "private words")
	o.EntryShown(ch, 1, "ALICE", "more words")
	o.ChapterCompleted(ch)
	o.NameConfirmed("Mika")
	o.SessionFinished()

	want := []string{"chapter_started", "chapter_completed", "name_confirmed", "session_finished"}
	if len(rec.names) != len(want) {
		t.Fatalf("events = %v", rec.names)
	}
	for i := range want {
		if rec.names[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.names, want)
		}
	}
	if rec.props[0]["chapter"] != 3 || rec.props[0]["entries"] != 2 || rec.props[1]["shown"] != 2 {
		t.Fatalf("unexpected props: %v", rec.props)
	}
	for _, p := range rec.props {
		for _, v := range p {
			if s, ok := v.(string); ok {
				t.Fatalf("string prop leaked: %q", s)
			}
		}
	}
}
