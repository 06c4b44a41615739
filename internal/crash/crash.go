/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in a CLI or UI entrypoint into a logged stack,
// a crash report file with the playback position, and an exit with code 2.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	applog "vnplayer/internal/log"
	"vnplayer/internal/telemetry"
	"vnplayer/internal/version"
)

// Keep is the number of crash reports left in a report directory; older ones
// are removed when a new report is written.
const Keep = 10

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Context describes what was running. Every field is optional.
type Context struct {
	// Dir receives crash-<stamp>.log; the temp dir is used when empty.
	Dir      string
	Manifest string
	// Position reports the playback cursor at crash time.
	Position func() (chapter string, entry int)
}

// Report is the content of one crash report file.
type Report struct {
	At       time.Time
	Manifest string
	Chapter  string
	Entry    int
	// Positioned is false when no cursor was available.
	Positioned bool
	Panic      any
	Stack      []byte
}

// NewReport captures the state described by c.
func NewReport(c *Context, panicVal any, stack []byte) Report {
	r := Report{At: time.Now(), Panic: panicVal, Stack: stack}
	if c != nil {
		r.Manifest = c.Manifest
	}
	r.Chapter, r.Entry, r.Positioned = position(c)
	return r
}

// Bytes renders the report as plain text.
func (r Report) Bytes() []byte {
	var b bytes.Buffer
	b.WriteString("vnplayer Crash Report\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", r.At.Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", version.String())
	fmt.Fprintf(&b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if r.Manifest != "" {
		fmt.Fprintf(&b, "Manifest: %s\n", r.Manifest)
	}
	if r.Positioned {
		fmt.Fprintf(&b, "Position: chapter %q entry %d\n", r.Chapter, r.Entry)
	}
	fmt.Fprintf(&b, "\nPanic: %v\n\nStack:\n%s\n", r.Panic, r.Stack)
	return b.Bytes()
}

// Recover captures a panic, logs it, writes a report and exits.
//
// Usage: defer crash.Recover(ctx)
func Recover(c *Context) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	rep := NewReport(c, r, debug.Stack())
	attrs := []any{slog.Any("panic", r), slog.String("stack", string(rep.Stack))}
	if rep.Positioned {
		attrs = append(attrs, slog.String(applog.ChapterKey, rep.Chapter), slog.Int(applog.EntryKey, rep.Entry))
	}
	l.Error("panic recovered", attrs...)

	path, err := save(dirOf(c), rep)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if err := telemetry.UploadCrash(rep.Bytes()); err != nil {
		l.Warn("crash upload failed", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\nVersion: %s\nOS/Arch: %s/%s\n",
		path, version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

func dirOf(c *Context) string {
	if c == nil || c.Dir == "" {
		return os.TempDir()
	}
	return c.Dir
}

// position calls c.Position, tolerating a second panic from a broken session.
func position(c *Context) (chapter string, entry int, ok bool) {
	if c == nil || c.Position == nil {
		return "", 0, false
	}
	defer func() {
		if recover() != nil {
			chapter, entry, ok = "", 0, false
		}
	}()
	chapter, entry = c.Position()
	return chapter, entry, true
}

// save writes rep into dir and prunes old reports there.
func save(dir string, rep Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "crash-"+rep.At.Format("20060102-150405")+".log")
	if err := os.WriteFile(path, rep.Bytes(), 0o644); err != nil {
		return path, err
	}
	if dir != os.TempDir() {
		prune(dir, Keep)
	}
	return path, nil
}

// prune removes all but the newest keep crash reports in dir. Report names
// sort by time.
func prune(dir string, keep int) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range ents {
		if n := e.Name(); !e.IsDir() && strings.HasPrefix(n, "crash-") && strings.HasSuffix(n, ".log") {
			names = append(names, n)
		}
	}
	if len(names) <= keep {
		return
	}
	sort.Strings(names)
	for _, n := range names[:len(names)-keep] {
		_ = os.Remove(filepath.Join(dir, n))
	}
}
