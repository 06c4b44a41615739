/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "vnplayer/internal/log"
	"vnplayer/internal/script"
)

const BackupsDirName = "backups"

// Format is an on-disk manifest encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatScript Format = "vns"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".vns":
		return FormatScript, nil
	}
	return "", fmt.Errorf("%s: unsupported manifest extension", path)
}

// Decode parses data in format f. JSON is checked against the schema before
// decoding so unknown fields are reported; other formats are checked after.
func Decode(data []byte, f Format) (script.Manifest, error) {
	var m script.Manifest
	switch f {
	case FormatJSON:
		if err := ValidateJSON(data); err != nil {
			return m, err
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("parse manifest: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return m, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	case FormatScript:
		var errs []script.Error
		m, errs = script.Parse(string(data))
		if len(errs) > 0 {
			all := make([]error, len(errs))
			for i, e := range errs {
				all[i] = e
			}
			return m, fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(all...))
		}
	default:
		return m, fmt.Errorf("unknown manifest format %q", f)
	}
	if f != FormatJSON {
		if err := validateSchema(m); err != nil {
			return m, err
		}
	}
	return m, Check(m)
}

// Encode renders m in format f.
func Encode(m script.Manifest, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal manifest: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("marshal manifest: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatScript:
		return []byte(script.Format(m)), nil
	}
	return nil, fmt.Errorf("unknown manifest format %q", f)
}

// Load reads the manifest at path. If the file cannot be read or parsed, the
// latest backup is tried before giving up.
func Load(path string) (script.Manifest, error) {
	f, err := FormatOf(path)
	if err != nil {
		return script.Manifest{}, err
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "manifest_load").With(slog.String("path", path))
	b, err := os.ReadFile(path)
	if err != nil {
		m, berr := loadLatestBackup(path, f)
		if berr != nil {
			return script.Manifest{}, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		l.Warn("manifest unreadable, loaded latest backup", slog.Any("err", err))
		return m, nil
	}
	m, derr := Decode(b, f)
	if derr != nil {
		bm, berr := loadLatestBackup(path, f)
		if berr != nil {
			return m, fmt.Errorf("%s: %w", path, derr)
		}
		l.Warn("manifest invalid, loaded latest backup", slog.Any("err", derr))
		return bm, nil
	}
	return m, nil
}

// Save writes m to path in the format its extension names, with transactional
// semantics and a timestamped backup of the previous file (if present).
func Save(path string, m script.Manifest) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := Check(m); err != nil {
		return err
	}
	data, err := Encode(m, f)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure manifest dir: %w", err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		bdir := filepath.Join(dir, BackupsDirName)
		if err := os.MkdirAll(bdir, 0o755); err != nil {
			return fmt.Errorf("ensure backups dir: %w", err)
		}
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// Windows cannot rename over an existing file.
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// Backups lists the backups of path, oldest first.
func Backups(path string) ([]string, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	base := filepath.Base(path)
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func loadLatestBackup(path string, f Format) (script.Manifest, error) {
	candidates, err := Backups(path)
	if err != nil {
		return script.Manifest{}, err
	}
	if len(candidates) == 0 {
		return script.Manifest{}, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return script.Manifest{}, fmt.Errorf("read latest backup: %w", err)
	}
	m, err := Decode(b, f)
	if err != nil {
		return script.Manifest{}, fmt.Errorf("parse latest backup: %w", err)
	}
	return m, nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sf.Close()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
