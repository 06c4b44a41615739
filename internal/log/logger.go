/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up slog for vnplayer: a compact console handler for people
// watching the player, an optional rotating JSON file for later analysis, and
// helpers that tag records with the component, operation and playback
// position that produced them.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"vnplayer/internal/version"
)

// Options controls Init. FromEnv fills it from
//
//	VNP_LOG_LEVEL   debug|info|warn|error (info)
//	VNP_LOG_FORMAT  console|json (console)
//	VNP_LOG_FILE    path of a rotated JSON log, empty for none
//	VNP_LOG_SOURCE  true adds file:line
type Options struct {
	Level     string
	Format    string
	AddSource bool
	File      string
	// Rotate applies to File; zero fields take the defaults.
	Rotate Rotation
	// Out receives console records; stderr when nil.
	Out io.Writer
}

// Rotation limits the log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = 10
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 3
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = 28
	}
	return r
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	level   = new(slog.LevelVar)
)

// L returns the process logger, set up from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l == nil {
		Init(FromEnv())
		mu.RLock()
		l = current
		mu.RUnlock()
	}
	return l
}

// Init installs the process logger and makes it slog's default.
func Init(opts Options) {
	level.Set(parseLevel(opts.Level))
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, hopts)
	} else {
		console = newConsoleHandler(out, level, opts.AddSource)
	}
	handlers := fanout{console}
	if f := strings.TrimSpace(opts.File); f != "" {
		r := opts.Rotate.withDefaults()
		w := &lj.Logger{Filename: f, MaxSize: r.MaxSizeMB, MaxBackups: r.MaxBackups, MaxAge: r.MaxAgeDays, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(w, hopts))
	}

	var h slog.Handler = handlers
	if len(handlers) == 1 {
		h = handlers[0]
	}
	logger := slog.New(positional{h}).With(slog.String("app", "vnplayer"), slog.String("ver", version.Version))

	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// FromEnv reads Options from the VNP_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("VNP_LOG_LEVEL", "info"),
		Format:    getenv("VNP_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("VNP_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("VNP_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// SetLevel changes the level of the installed handlers in place.
func SetLevel(s string) { level.Set(parseLevel(s)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger { return slog.New(discard{}) }

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }

// WithComponent returns the process logger tagged with a component name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String(ComponentKey, name)) }

// WithOperation tags l with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger {
	return l.With(slog.String(OperationKey, op))
}

// Attribute keys with special rendering on the console.
const (
	ComponentKey = "component"
	OperationKey = "op"
	ChapterKey   = "chapter"
	EntryKey     = "entry"
)

type positionKey struct{}

// Position identifies a dialogue entry.
type Position struct {
	Chapter string
	Entry   int
}

// WithPosition attaches a playback position to ctx. Records logged through
// the *Context methods of slog with that ctx carry chapter and entry.
func WithPosition(ctx context.Context, chapter string, entry int) context.Context {
	return context.WithValue(ctx, positionKey{}, Position{Chapter: chapter, Entry: entry})
}

// PositionFrom returns the position attached by WithPosition.
func PositionFrom(ctx context.Context) (Position, bool) {
	p, ok := ctx.Value(positionKey{}).(Position)
	return p, ok
}

// positional copies the context position into each record.
type positional struct{ next slog.Handler }

func (p positional) Enabled(ctx context.Context, l slog.Level) bool { return p.next.Enabled(ctx, l) }

func (p positional) Handle(ctx context.Context, r slog.Record) error {
	if pos, ok := PositionFrom(ctx); ok {
		r.AddAttrs(slog.String(ChapterKey, pos.Chapter), slog.Int(EntryKey, pos.Entry))
	}
	return p.next.Handle(ctx, r)
}

func (p positional) WithAttrs(as []slog.Attr) slog.Handler { return positional{p.next.WithAttrs(as)} }
func (p positional) WithGroup(name string) slog.Handler    { return positional{p.next.WithGroup(name)} }

// fanout sends each record to every handler that wants it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(as []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(as)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
