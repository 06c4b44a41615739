/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"vnplayer/internal/domain"
)

// ErrNotFound is returned when no asset matches a category and key.
var ErrNotFound = errors.New("asset not found")

// Map is an in-memory resolver. It is safe for concurrent use.
type Map struct {
	mu sync.RWMutex
	m  map[domain.Category]map[string]*domain.Asset
}

// NewMap returns an empty Map.
func NewMap() *Map { return &Map{m: map[domain.Category]map[string]*domain.Asset{}} }

// Add registers an asset and returns it. Audio assets take d as their length.
func (m *Map) Add(cat domain.Category, key string, d time.Duration) *domain.Asset {
	a := &domain.Asset{Category: cat, Key: key, Duration: d}
	m.Put(a)
	return a
}

// Put registers a fully built asset.
func (m *Map) Put(a *domain.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m[a.Category] == nil {
		m.m[a.Category] = map[string]*domain.Asset{}
	}
	m.m[a.Category][a.Key] = a
}

// Resolve implements cue.Resolver.
func (m *Map) Resolve(cat domain.Category, key string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.m[cat][key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%s %q: %w", cat, key, ErrNotFound)
}

// Keys lists the keys registered for cat, sorted.
func (m *Map) Keys(cat domain.Category) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.m[cat]))
	for k := range m.m[cat] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
