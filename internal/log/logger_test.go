/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lastJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines in %s", path)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", last, err)
	}
	return m
}

func TestInitWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "vnplayer.log")
	Init(Options{Level: "debug", File: file, Out: &console})
	t.Cleanup(func() { Init(Options{Level: "error", Out: &bytes.Buffer{}}) })

	l := WithOperation(WithComponent("playback"), "show")
	l.InfoContext(WithPosition(context.Background(), "ch2", 4), "entry shown", slog.String("speaker", "Aya"))

	line := console.String()
	for _, want := range []string{"INF playback", "entry shown @ch2#4", "op=show", "speaker=Aya"} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line missing %q: %q", want, line)
		}
	}
	if strings.Contains(line, "app=") {
		t.Fatalf("static attrs belong to the file log only: %q", line)
	}

	m := lastJSON(t, file)
	if m["app"] != "vnplayer" || m["component"] != "playback" || m["op"] != "show" {
		t.Fatalf("file record attrs: %v", m)
	}
	if m["chapter"] != "ch2" || m["entry"] != float64(4) || m["msg"] != "entry shown" {
		t.Fatalf("file record position: %v", m)
	}
}

func TestInitJSONConsole(t *testing.T) {
	var console bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Out: &console})
	t.Cleanup(func() { Init(Options{Level: "error", Out: &bytes.Buffer{}}) })

	WithComponent("cue").Info("dropped")
	WithComponent("cue").Warn("missing asset", slog.String("key", "hall"))
	if strings.Contains(console.String(), "dropped") {
		t.Fatalf("info passed a warn level: %q", console.String())
	}
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &m); err != nil {
		t.Fatalf("console is not JSON: %v", err)
	}
	if m["key"] != "hall" || m["level"] != "WARN" {
		t.Fatalf("record: %v", m)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("VNP_LOG_LEVEL", "warn")
	t.Setenv("VNP_LOG_FORMAT", "json")
	t.Setenv("VNP_LOG_SOURCE", "true")
	t.Setenv("VNP_LOG_FILE", "")
	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	t.Setenv("VNP_LOG_LEVEL", "  ")
	if FromEnv().Level != "info" {
		t.Fatalf("blank level should default to info")
	}
}

func TestConsoleFormatting(t *testing.T) {
	var buf bytes.Buffer
	h := newConsoleHandler(&buf, slog.LevelWarn, false)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	l := slog.New(h).With(slog.String(ComponentKey, "reveal"), slog.String("app", "vnplayer")).WithGroup("timer")
	l.Error("boom",
		slog.Int("n", 42),
		slog.Float64("ratio", 0.95),
		slog.Duration("delay", 30*time.Millisecond),
		slog.String("text", "two words"),
		slog.Any("err", errors.New("bad clip")),
		slog.Group("voice", slog.String("key", "v1")),
	)
	out := buf.String()
	for _, want := range []string{
		"ERR reveal     boom",
		"timer.n=42",
		"timer.ratio=0.95",
		"timer.delay=30ms",
		`timer.text="two words"`,
		`timer.err="bad clip"`,
		"timer.voice.key=v1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "app=") {
		t.Fatalf("app attr should be hidden: %q", out)
	}
}

func TestConsolePositionWithoutEntry(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newConsoleHandler(&buf, slog.LevelDebug, false))
	l.Debug("chapter started", slog.String(ChapterKey, "ch1"))
	if !strings.Contains(buf.String(), "DBG") || !strings.HasSuffix(buf.String(), "chapter started @ch1\n") {
		t.Fatalf("unexpected line %q", buf.String())
	}
}

func TestDiscardAndOrDiscard(t *testing.T) {
	d := Discard()
	if d.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger must not be enabled")
	}
	d.Error("dropped")
	if OrDiscard(nil) == nil {
		t.Fatalf("OrDiscard(nil) returned nil")
	}
	l := slog.New(newConsoleHandler(&bytes.Buffer{}, nil, false))
	if OrDiscard(l) != l {
		t.Fatalf("OrDiscard must keep a non-nil logger")
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel("error")
	if level.Level() != slog.LevelError {
		t.Fatalf("level = %v, want error", level.Level())
	}
	SetLevel("nonsense")
	if level.Level() != slog.LevelInfo {
		t.Fatalf("unknown level should fall back to info, got %v", level.Level())
	}
}

func TestRotationDefaults(t *testing.T) {
	r := Rotation{MaxBackups: 7}.withDefaults()
	if r.MaxSizeMB != 10 || r.MaxBackups != 7 || r.MaxAgeDays != 28 {
		t.Fatalf("defaults: %+v", r)
	}
}
