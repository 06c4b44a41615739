/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists chapter manifests and the playback history.
// Manifests are read and written as JSON, YAML or .vns script, with transactional
// writes and timestamped backups next to the manifest. Load validates against an
// embedded JSON schema and Link turns the result into linked domain chapters.
// The history index is an embedded SQLite database with FTS5 search over every
// line the player was shown; it is derived data and can be deleted at any time.
package storage
