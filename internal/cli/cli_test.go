/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"vnplayer/internal/config"
	"vnplayer/internal/domain"
	"vnplayer/internal/playback"
	"vnplayer/internal/script"
	"vnplayer/internal/storage"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvBackendDSN, "")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvHistoryDir, "")
	t.Setenv(config.EnvAssetsDir, "")
	t.Setenv(config.EnvTelemetryOptIn, "false")
	keyring.MockInit()
	return dir
}

func writeManifest(t *testing.T, dir, name string) string {
	t.Helper()
	e := func(speaker, text string) script.Entry {
		return script.Entry{DialogueEntry: domain.DialogueEntry{SpeakerName: speaker, Text: text}}
	}
	m := script.Manifest{
		Start: "ch1",
		Chapters: []script.Chapter{
			{ID: "ch1", Title: "Arrival", Number: 1, Next: "ch2", Entries: []script.Entry{
				e("ALICE", "Welcome to the station, [PLAYER_NAME]."),
				e("", "[NAME_INPUT]"),
			}},
			{ID: "ch2", Title: "Road", Number: 2, Entries: []script.Entry{
				e("BOB", "Keep moving."),
			}},
		},
	}
	m.Chapters[0].Entries[0].BackgroundImage = "forest"
	m.Chapters[0].Entries[0].BackgroundMusic = "calm"
	p := filepath.Join(dir, name)
	if err := storage.Save(p, m); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	return p
}

func run(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	if in == nil {
		in = strings.NewReader("")
	}
	root.SetIn(in)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	isolate(t)
	got, err := run(t, nil, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(got, "vnplayer ") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestValidateReportsMissingAssets(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	assetsRoot := filepath.Join(dir, "assets")
	if err := os.MkdirAll(filepath.Join(assetsRoot, "Music"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assetsRoot, "Music", "calm.ogg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := run(t, nil, "validate", "--assets", assetsRoot, p)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(got, `warning: background "forest"`) {
		t.Fatalf("missing background not reported:\n%s", got)
	}
	if strings.Contains(got, `"calm"`) {
		t.Fatalf("present music reported missing:\n%s", got)
	}
	if !strings.Contains(got, "2 chapters, 3 entries") {
		t.Fatalf("summary missing:\n%s", got)
	}
	if _, err := run(t, nil, "validate", "--strict", "--assets", assetsRoot, p); err == nil {
		t.Fatalf("expected --strict to fail")
	}
}

func TestValidateRejectsBrokenManifest(t *testing.T) {
	dir := isolate(t)
	p := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(p, []byte(`{"chapters": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, nil, "validate", p); err == nil {
		t.Fatalf("expected an error for a manifest without chapters")
	}
}

func TestConvert(t *testing.T) {
	dir := isolate(t)
	in := writeManifest(t, dir, "story.yaml")
	outPath := filepath.Join(dir, "story.vns")
	got, err := run(t, nil, "convert", in, outPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(got, "2 chapters") {
		t.Fatalf("unexpected output %q", got)
	}
	m, err := storage.Load(outPath)
	if err != nil {
		t.Fatalf("load converted: %v", err)
	}
	if len(m.Chapters) != 2 || m.Chapters[0].Entries[0].BackgroundImage != "forest" {
		t.Fatalf("converted manifest differs: %+v", m)
	}
}

func TestVoicesAssignsByNumber(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	voice := filepath.Join(dir, "assets", "Voice", "ch2")
	if err := os.MkdirAll(voice, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(voice, "001.wav"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := run(t, nil, "voices", "--dry-run", p, filepath.Join(dir, "assets"))
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if !strings.Contains(got, "ch2: 1 of 1 entries assigned") {
		t.Fatalf("unexpected output:\n%s", got)
	}
	m, _ := storage.Load(p)
	if m.Chapters[1].Entries[0].VoiceClipName != "" {
		t.Fatalf("dry run wrote the manifest")
	}

	if _, err := run(t, nil, "voices", p, filepath.Join(dir, "assets")); err != nil {
		t.Fatalf("voices: %v", err)
	}
	m, err = storage.Load(p)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := m.Chapters[1].Entries[0].VoiceClipName; got != "ch2/001" {
		t.Fatalf("voiceClipName = %q", got)
	}
}

func TestExportPDF(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	pdf := filepath.Join(dir, "out", "story.pdf")
	if _, err := run(t, nil, "export", "pdf", "--page", "letter", "--title", "Night Train", p, pdf); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(pdf)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("not a PDF")
	}
	if _, err := run(t, nil, "export", "pdf", "--page", "a3", p, pdf); err == nil {
		t.Fatalf("expected an error for an unknown page size")
	}
}

func TestPlayJournalsHistory(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	hist := filepath.Join(dir, "history")
	got, err := run(t, strings.NewReader(""), "play", "--fast", "--name", "Mika", "--history", hist, p)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !strings.Contains(got, "== Chapter 1: Arrival ==") {
		t.Fatalf("chapter banner missing:\n%s", got)
	}

	got, err = run(t, nil, "history", "search", hist, "station")
	if err != nil {
		t.Fatalf("history search: %v", err)
	}
	if !strings.Contains(got, "ch1[0] ALICE: ") || !strings.Contains(got, "1 lines") {
		t.Fatalf("journaled line not found:\n%s", got)
	}
}

func TestOpenSessionWarmsAssetCache(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	root := filepath.Join(dir, "assets")
	for _, f := range []string{filepath.Join("Backgrounds", "forest.png"), filepath.Join("Music", "calm.ogg")} {
		if err := os.MkdirAll(filepath.Join(root, filepath.Dir(f)), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := loadStory(p, root)
	if err != nil {
		t.Fatalf("loadStory: %v", err)
	}
	ss, err := newEnv().openSession(context.Background(), s, "", "")
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer ss.Close()

	// Dispatch must not touch the disk once playback runs.
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Assets.Resolve(domain.CategoryBackground, "forest"); err != nil {
		t.Fatalf("background not cached: %v", err)
	}
	if _, err := s.Assets.Resolve(domain.CategoryMusic, "calm"); err != nil {
		t.Fatalf("music not cached: %v", err)
	}
}

func TestPlayUnknownChapter(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	if _, err := run(t, nil, "play", "--chapter", "nope", p); err == nil {
		t.Fatalf("expected an error for an unknown chapter")
	}
}

func TestServePrintTokenNeedsSecret(t *testing.T) {
	dir := isolate(t)
	t.Setenv(EnvRemoteSecret, "")
	p := writeManifest(t, dir, "story.json")
	if _, err := run(t, nil, "serve", "--print-token", p); err == nil {
		t.Fatalf("expected an error without a secret")
	}
}

func TestDBWithoutDSN(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	_, err := run(t, nil, "db", "import", p)
	if err == nil || !strings.Contains(err.Error(), "no Postgres DSN") {
		t.Fatalf("expected a missing DSN error, got %v", err)
	}
}

func TestFastScalesPacing(t *testing.T) {
	base := playback.DefaultTuning()
	got := fast(base)
	if got.Reveal.Speed != base.Reveal.Speed/10 || got.Session.EndDwell != base.Session.EndDwell/10 {
		t.Fatalf("pacing not scaled: %+v", got)
	}
	base.Cue.BackgroundFade = 5 * time.Millisecond
	if got := fast(base); got.Cue.BackgroundFade != time.Millisecond {
		t.Fatalf("short fade = %v, want the 1ms floor", got.Cue.BackgroundFade)
	}
	base.Cue.CharacterFade = 0
	if got := fast(base); got.Cue.CharacterFade != 0 {
		t.Fatalf("zero fade changed to %v", got.Cue.CharacterFade)
	}
}

func TestAssetsDir(t *testing.T) {
	cfg := config.Defaults()
	if got := assetsDir(cfg, "/stories/a.json", "/x"); got != "/x" {
		t.Fatalf("flag ignored: %q", got)
	}
	if got := assetsDir(cfg, "/stories/a.json", ""); got != filepath.Join("/stories", "assets") {
		t.Fatalf("relative config dir = %q", got)
	}
	cfg.General.AssetsDir = "/abs"
	if got := assetsDir(cfg, "/stories/a.json", ""); got != "/abs" {
		t.Fatalf("absolute config dir = %q", got)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	dir := isolate(t)
	p := writeManifest(t, dir, "story.json")
	bg := filepath.Join(dir, "assets", "Backgrounds")
	if err := os.MkdirAll(bg, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bg, "forest.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(dir, "story.zip")
	got, err := run(t, nil, "export", "bundle", p, zipPath)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if !strings.Contains(got, `warning: music "calm"`) || !strings.Contains(got, "(2 files)") {
		t.Fatalf("unexpected output:\n%s", got)
	}
	dst := filepath.Join(dir, "installed")
	if _, err := run(t, nil, "install", zipPath, dst); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := run(t, nil, "validate", "--strict", filepath.Join(dst, "story.json")); err == nil {
		t.Fatalf("expected the missing music to fail --strict")
	}
	got, err = run(t, nil, "validate", filepath.Join(dst, "story.json"))
	if err != nil {
		t.Fatalf("validate installed: %v", err)
	}
	if strings.Contains(got, `"forest"`) {
		t.Fatalf("installed background not found:\n%s", got)
	}
}
