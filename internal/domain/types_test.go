/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChapterEntryBounds(t *testing.T) {
	ch := &Chapter{Title: "One", Entries: []DialogueEntry{{Text: "a"}, {Text: "b"}}}
	if ch.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ch.Len())
	}
	if e, ok := ch.Entry(1); !ok || e.Text != "b" {
		t.Fatalf("Entry(1) = %+v, %v", e, ok)
	}
	for _, i := range []int{-1, 2} {
		if _, ok := ch.Entry(i); ok {
			t.Fatalf("Entry(%d) should be out of range", i)
		}
	}
	var nilCh *Chapter
	if nilCh.Len() != 0 {
		t.Fatalf("nil chapter should have no entries")
	}
}

func TestHasVoice(t *testing.T) {
	cases := []struct {
		name string
		e    DialogueEntry
		want bool
	}{
		{"none", DialogueEntry{}, false},
		{"blank name", DialogueEntry{VoiceClipName: "  "}, false},
		{"name", DialogueEntry{VoiceClipName: "v001"}, true},
		{"direct", DialogueEntry{VoiceClip: &Asset{Key: "v", Duration: time.Second}}, true},
	}
	for _, c := range cases {
		if got := c.e.HasVoice(); got != c.want {
			t.Fatalf("%s: HasVoice() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestEntryJSONOmitsRuntimeFields(t *testing.T) {
	e := DialogueEntry{Text: "hi", VoiceClip: &Asset{Key: "x"}}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["VoiceClip"]; ok {
		t.Fatalf("direct voice reference must not be serialized: %s", b)
	}
	if m["text"] != "hi" {
		t.Fatalf("text missing: %s", b)
	}
}
