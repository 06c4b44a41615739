/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"vnplayer/internal/script"
)

var (
	// ErrInvalidManifest wraps schema violations and script parse errors.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrUnknownSuccessor is returned when a chapter's next names no chapter.
	ErrUnknownSuccessor = errors.New("unknown successor chapter")
	// ErrUnknownChapter is returned when the start chapter does not exist.
	ErrUnknownChapter = errors.New("unknown chapter")
)

//go:embed manifest.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// SchemaJSON returns the embedded manifest schema.
func SchemaJSON() []byte { return schemaJSON }

// ValidateJSON checks a JSON manifest document against the embedded schema.
func ValidateJSON(data []byte) error {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	if schemaErr != nil {
		return fmt.Errorf("load manifest schema: %w", schemaErr)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
}

func validateSchema(m script.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return ValidateJSON(data)
}

// Check verifies the chapter graph: unique IDs, a known start chapter and
// known successors.
func Check(m script.Manifest) error {
	if len(m.Chapters) == 0 {
		return fmt.Errorf("%w: no chapters", ErrInvalidManifest)
	}
	ids := make(map[string]bool, len(m.Chapters))
	for _, ch := range m.Chapters {
		if ch.ID == "" {
			return fmt.Errorf("%w: chapter %q has no id", ErrInvalidManifest, ch.Title)
		}
		if ids[ch.ID] {
			return fmt.Errorf("%w: duplicate chapter id %q", ErrInvalidManifest, ch.ID)
		}
		ids[ch.ID] = true
	}
	for _, ch := range m.Chapters {
		if ch.Next != "" && !ids[ch.Next] {
			return fmt.Errorf("chapter %q next %q: %w", ch.ID, ch.Next, ErrUnknownSuccessor)
		}
	}
	if m.Start != "" && !ids[m.Start] {
		return fmt.Errorf("start %q: %w", m.Start, ErrUnknownChapter)
	}
	return nil
}
