/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"vnplayer/internal/assets"
	"vnplayer/internal/domain"
)

func writeFile(t *testing.T, p, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPackAndInstall(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(src, "assets")
	writeFile(t, filepath.Join(root, "Backgrounds", "hall.png"), "img")
	writeFile(t, filepath.Join(root, "Voice", "ch1", "001.wav"), "wav")
	writeFile(t, filepath.Join(root, "Voice", "intro.ogg"), "ogg")
	manifest := filepath.Join(src, "story.vns")
	writeFile(t, manifest, "@chapter ch1\n")

	fs := assets.NewFS(root)
	intro, err := fs.Open(domain.CategoryVoice, "Voice/intro.ogg")
	if err != nil {
		t.Fatalf("open voice: %v", err)
	}
	ch := &domain.Chapter{ID: "ch1", Entries: []domain.DialogueEntry{
		{Text: "a", BackgroundImage: "hall", VoiceClipName: "ch1/001"},
		{Text: "b", BackgroundImage: "hall", CharacterSprite: "ghost", VoiceClip: intro},
	}}
	zipPath := filepath.Join(src, "out", "story.zip")
	res, err := Pack(manifest, fs, []*domain.Chapter{ch}, zipPath)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.Files != 4 {
		t.Fatalf("files = %d, want manifest and 3 assets", res.Files)
	}
	if len(res.Missing) != 1 || res.Missing[0].Key != "ghost" {
		t.Fatalf("missing = %+v", res.Missing)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	_ = r.Close()
	sort.Strings(names)
	want := []string{"assets/Backgrounds/hall.png", "assets/Voice/ch1/001.wav", "assets/Voice/intro.ogg", InfoName, "story.vns"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}

	dst := t.TempDir()
	n, err := Install(zipPath, dst)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if n != 4 {
		t.Fatalf("installed %d", n)
	}
	if _, err := os.Stat(filepath.Join(dst, "assets", "Voice", "ch1", "001.wav")); err != nil {
		t.Fatalf("voice not installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, InfoName)); !os.IsNotExist(err) {
		t.Fatalf("summary file should not be installed")
	}

	// A second install keeps what is there.
	if n, err := Install(zipPath, dst); err != nil || n != 0 {
		t.Fatalf("reinstall = %d, %v", n, err)
	}
}

func TestInstallIgnoresEntriesOutsideTarget(t *testing.T) {
	dir := t.TempDir()
	zpath := filepath.Join(dir, "evil.zip")
	f, err := os.Create(zpath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"../evil.txt", "assets/ok.txt"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	target := filepath.Join(dir, "story")
	n, err := Install(zpath, target)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if n != 1 {
		t.Fatalf("installed %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); err == nil {
		t.Fatalf("entry escaped the target dir")
	}
}

func TestPackRequiresPaths(t *testing.T) {
	if _, err := Pack("", assets.NewFS(t.TempDir()), nil, ""); err == nil {
		t.Fatalf("expected an error")
	}
	if _, err := Install("", ""); err == nil {
		t.Fatalf("expected an error")
	}
}
