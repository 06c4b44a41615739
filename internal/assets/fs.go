/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package assets resolves asset keys to files under an assets directory and
// reads their dimensions or play length.
//
// Layout (one folder per category, key = file name without extension):
//
//	<root>/Backgrounds/<key>.png|jpg|jpeg|bmp|webp
//	<root>/Characters/<key>.png|...
//	<root>/Music/<key>.wav|mp3|ogg
//	<root>/SFX/<key>.wav|mp3|ogg
//	<root>/Voice/<key>.wav|mp3|ogg
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"vnplayer/internal/domain"
	vlog "vnplayer/internal/log"
)

// Folder returns the directory name of a category.
func Folder(cat domain.Category) string {
	switch cat {
	case domain.CategoryBackground:
		return "Backgrounds"
	case domain.CategoryCharacter:
		return "Characters"
	case domain.CategoryMusic:
		return "Music"
	case domain.CategorySFX:
		return "SFX"
	case domain.CategoryVoice:
		return "Voice"
	}
	return string(cat)
}

// Extensions lists accepted file extensions per category in lookup order.
func Extensions(cat domain.Category) []string {
	switch cat {
	case domain.CategoryBackground, domain.CategoryCharacter:
		return []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}
	default:
		return []string{".wav", ".mp3", ".ogg"}
	}
}

type cacheKey struct {
	cat domain.Category
	key string
}

type cacheEntry struct {
	a   *domain.Asset
	err error
}

// FS resolves assets from a directory tree and caches results, misses included.
type FS struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewFS returns a resolver rooted at dir.
func NewFS(dir string) *FS {
	return &FS{root: dir, log: vlog.WithComponent("assets"), cache: map[cacheKey]cacheEntry{}}
}

// Root returns the assets directory.
func (f *FS) Root() string { return f.root }

// Resolve implements cue.Resolver. Inspect failures are logged and the asset is
// still returned without dimensions or length.
func (f *FS) Resolve(cat domain.Category, key string) (*domain.Asset, error) {
	ck := cacheKey{cat, key}
	f.mu.Lock()
	if e, ok := f.cache[ck]; ok {
		f.mu.Unlock()
		return e.a, e.err
	}
	f.mu.Unlock()

	a, err := f.lookup(cat, key)
	f.mu.Lock()
	f.cache[ck] = cacheEntry{a: a, err: err}
	f.mu.Unlock()
	return a, err
}

func (f *FS) lookup(cat domain.Category, key string) (*domain.Asset, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("%s %q: %w", cat, key, ErrNotFound)
	}
	base := filepath.Join(f.root, Folder(cat), clean)
	for _, ext := range Extensions(cat) {
		p := base + ext
		if st, err := os.Stat(p); err != nil || st.IsDir() {
			continue
		}
		a := &domain.Asset{Category: cat, Key: key, Path: p}
		if err := Inspect(a); err != nil {
			f.log.Warn("inspect failed", slog.String("path", p), slog.Any("err", err))
		}
		return a, nil
	}
	return nil, fmt.Errorf("%s %q: %w", cat, key, ErrNotFound)
}

// Open resolves a path given relative to the root (or absolute) as an asset of
// cat, keyed by its file name without extension. Used for direct voice references.
func (f *FS) Open(cat domain.Category, path string) (*domain.Asset, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.root, filepath.FromSlash(path))
	}
	st, err := os.Stat(p)
	if err != nil || st.IsDir() {
		return nil, fmt.Errorf("%s %q: %w", cat, path, ErrNotFound)
	}
	key := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	a := &domain.Asset{Category: cat, Key: key, Path: p}
	if err := Inspect(a); err != nil {
		f.log.Warn("inspect failed", slog.String("path", p), slog.Any("err", err))
	}
	return a, nil
}

// List returns the keys available for cat, sorted by file name.
func (f *FS) List(cat domain.Category) ([]string, error) { return f.ListIn(cat, "") }

// ListIn lists one subfolder of cat's folder. Keys carry the "sub/" prefix so
// they resolve through Resolve unchanged.
func (f *FS) ListIn(cat domain.Category, sub string) ([]string, error) {
	clean := filepath.Clean(filepath.FromSlash(sub))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("%s %q: %w", cat, sub, ErrNotFound)
	}
	prefix := ""
	if sub != "" {
		prefix = filepath.ToSlash(clean) + "/"
	}
	dir := filepath.Join(f.root, Folder(cat), clean)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	ok := map[string]bool{}
	for _, e := range Extensions(cat) {
		ok[e] = true
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ok[ext] {
			out = append(out, prefix+strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	return out, nil
}

// Ref is one asset reference to preload.
type Ref struct {
	Category domain.Category
	Key      string
}

// Refs collects every asset key referenced by the chapters, without duplicates.
func Refs(chapters ...*domain.Chapter) []Ref {
	seen := map[Ref]bool{}
	var out []Ref
	add := func(cat domain.Category, key string) {
		r := Ref{cat, key}
		if key == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	for _, ch := range chapters {
		if ch == nil {
			continue
		}
		for _, e := range ch.Entries {
			add(domain.CategoryBackground, e.BackgroundImage)
			if !e.HideCharacter {
				add(domain.CategoryCharacter, e.CharacterSprite)
			}
			add(domain.CategoryMusic, e.BackgroundMusic)
			add(domain.CategorySFX, e.SoundEffect)
			if e.VoiceClip == nil {
				add(domain.CategoryVoice, e.VoiceClipName)
			}
		}
	}
	return out
}

// Preload resolves refs concurrently so later lookups hit the cache. It
// returns the refs that could not be found; only ctx errors are returned as err.
func (f *FS) Preload(ctx context.Context, refs []Ref, workers int) ([]Ref, error) {
	if workers <= 0 {
		workers = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	var missing []Ref
	for _, r := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := f.Resolve(r.Category, r.Key); err != nil {
				mu.Lock()
				missing = append(missing, r)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return missing, err
	}
	return missing, nil
}
