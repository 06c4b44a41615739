/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import (
	"strings"
	"unicode/utf8"
)

// Name tokens. The first entry of each list is canonical.
var (
	NameTokens      = []string{"[PLAYER_NAME]", "[NAME]", "[ИМЯ ИГРОКА]"}
	NameInputTokens = []string{"[NAME_INPUT]", "[ВВОД_ИМЕНИ]"}
)

// Substitute replaces every name token in s with name.
func Substitute(s, name string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	for _, tok := range NameTokens {
		s = strings.ReplaceAll(s, tok, name)
	}
	return s
}

// IsNameInput reports whether s asks for the player's name.
func IsNameInput(s string) bool {
	for _, tok := range NameInputTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// NormalizeName trims raw and cuts it to max runes. ok is false when fewer
// than min runes remain.
func NormalizeName(raw string, min, max int) (name string, ok bool) {
	name = strings.TrimSpace(raw)
	if max > 0 && utf8.RuneCountInString(name) > max {
		name = strings.TrimSpace(string([]rune(name)[:max]))
	}
	return name, name != "" && utf8.RuneCountInString(name) >= min
}
