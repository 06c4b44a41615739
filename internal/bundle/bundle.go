/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package bundle packs a manifest together with the asset files it references
// into a single zip archive, and installs such archives.
//
// Archive layout:
//
//	bundle.txt              human-readable summary
//	<manifest file>         the manifest, unchanged
//	assets/<Folder>/<file>  every referenced asset that was found
//
// Installing into a directory therefore yields a manifest next to an
// "assets" folder, which is where playback looks by default.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"vnplayer/internal/assets"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/version"
)

// InfoName is the summary file at the archive root. Install skips it.
const InfoName = "bundle.txt"

// AssetsDir is the archive folder holding asset files.
const AssetsDir = "assets"

// Result reports what Pack wrote.
type Result struct {
	Files   int
	Missing []assets.Ref
}

// Pack writes the manifest at manifestPath and every asset the chapters
// reference into destZip. Assets that cannot be resolved are listed in
// Result.Missing and do not fail the pack.
func Pack(manifestPath string, fs *assets.FS, chapters []*domain.Chapter, destZip string) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "pack").With(slog.String("manifest", manifestPath))
	var res Result
	if strings.TrimSpace(manifestPath) == "" || strings.TrimSpace(destZip) == "" {
		return res, errors.New("manifest and destination are required")
	}
	files, missing := collect(fs, chapters)
	res.Missing = missing

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return res, fmt.Errorf("ensure zip dir: %w", err)
	}
	_ = os.Remove(destZip)
	zf, err := os.Create(destZip)
	if err != nil {
		return res, fmt.Errorf("create zip: %w", err)
	}
	zw := zip.NewWriter(zf)

	info := fmt.Sprintf("vnplayer story bundle\nCreated: %s\nVersion: %s\nManifest: %s\nAssets: %d\nMissing: %d\n",
		time.Now().Format(time.RFC3339), version.String(), filepath.Base(manifestPath), len(files), len(missing))
	if err := writeEntry(zw, InfoName, strings.NewReader(info)); err != nil {
		_ = zf.Close()
		return res, err
	}
	if err := addFile(zw, filepath.Base(manifestPath), manifestPath); err != nil {
		_ = zf.Close()
		return res, err
	}
	res.Files++
	for _, f := range files {
		if err := addFile(zw, f.name, f.path); err != nil {
			_ = zf.Close()
			l.Error("zip build failed", slog.Any("err", err))
			return res, err
		}
		res.Files++
	}
	if err := zw.Close(); err != nil {
		_ = zf.Close()
		return res, fmt.Errorf("finish zip: %w", err)
	}
	if err := zf.Close(); err != nil {
		return res, fmt.Errorf("close zip: %w", err)
	}
	l.Info("bundle written", slog.Int("files", res.Files), slog.Int("missing", len(missing)), slog.String("zip", destZip))
	return res, nil
}

type file struct{ name, path string }

// collect resolves every referenced asset, direct voice clips included, to
// its archive name. Files outside the assets root are stored by category
// folder and base name.
func collect(fs *assets.FS, chapters []*domain.Chapter) ([]file, []assets.Ref) {
	seen := map[string]bool{}
	var out []file
	add := func(a *domain.Asset) {
		if a == nil || a.Path == "" || seen[a.Path] {
			return
		}
		seen[a.Path] = true
		rel, err := filepath.Rel(fs.Root(), a.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Join(assets.Folder(a.Category), filepath.Base(a.Path))
		}
		out = append(out, file{name: path.Join(AssetsDir, filepath.ToSlash(rel)), path: a.Path})
	}
	var missing []assets.Ref
	for _, r := range assets.Refs(chapters...) {
		a, err := fs.Resolve(r.Category, r.Key)
		if err != nil {
			missing = append(missing, r)
			continue
		}
		add(a)
	}
	for _, ch := range chapters {
		for _, e := range ch.Entries {
			add(e.VoiceClip)
		}
	}
	return out, missing
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()
	return writeEntry(zw, name, f)
}

func writeEntry(zw *zip.Writer, name string, r io.Reader) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Install extracts the bundle at zipPath into dir. Existing files are kept
// and entries that would land outside dir are ignored. It returns the number
// of files written.
func Install(zipPath, dir string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "install").With(slog.String("dir", dir))
	if strings.TrimSpace(zipPath) == "" || strings.TrimSpace(dir) == "" {
		return 0, errors.New("bundle and target dir are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("ensure target dir: %w", err)
	}
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = r.Close() }()

	installed := 0
	for _, f := range r.File {
		if f.Name == InfoName {
			continue
		}
		clean := path.Clean(f.Name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			l.Warn("skip entry outside target", slog.String("name", f.Name))
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(clean))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return installed, err
			}
			continue
		}
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing file", slog.String("path", target))
			continue
		}
		if err := extract(f, target); err != nil {
			return installed, err
		}
		installed++
	}
	l.Info("bundle installed", slog.Int("files", installed))
	return installed, nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
