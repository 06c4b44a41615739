/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends anonymous, opt-in usage events in batches and can
// upload crash reports. Nothing is sent unless the player opted in and an
// endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "vnplayer/internal/log"
	"vnplayer/internal/version"
)

// Config controls the client. FromEnv reads
//
//	VNP_TELEMETRY_OPT_IN      1|true|yes|on
//	VNP_TELEMETRY_URL         events endpoint (POST, JSON batch)
//	VNP_CRASH_UPLOAD_URL      crash endpoint (POST, text)
//	VNP_TELEMETRY_TIMEOUT_MS  per request, 1500 by default
//	VNP_TELEMETRY_DEBUG       log send results
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
	// BatchSize events are sent together; a partial batch goes out after FlushEvery.
	BatchSize  int
	FlushEvery time.Duration
	Debug      bool
}

// FromEnv reads the whole configuration, opt-in included, from the environment.
func FromEnv() Config { return FromEnvOptIn(parseBool(os.Getenv("VNP_TELEMETRY_OPT_IN"))) }

// FromEnvOptIn is FromEnv with the opt-in decided by the caller, usually the
// config file's general.telemetry_opt_in merged with its env override.
func FromEnvOptIn(optIn bool) Config {
	cfg := Config{
		OptIn:     optIn,
		EventsURL: strings.TrimSpace(os.Getenv("VNP_TELEMETRY_URL")),
		CrashURL:  strings.TrimSpace(os.Getenv("VNP_CRASH_UPLOAD_URL")),
		Debug:     os.Getenv("VNP_TELEMETRY_DEBUG") != "",
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("VNP_TELEMETRY_TIMEOUT_MS"))); err == nil && v > 0 {
		cfg.Timeout = time.Duration(v) * time.Millisecond
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 1500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 10 * time.Second
	}
	return c
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

type event struct {
	Name  string         `json:"name"`
	At    time.Time      `json:"at"`
	Props map[string]any `json:"props,omitempty"`
}

// batch is the body of one events POST. Run is random per process and not
// stored anywhere, so batches of one run can be grouped but not linked to a player.
type batch struct {
	App     string  `json:"app"`
	Version string  `json:"version"`
	OS      string  `json:"os"`
	Arch    string  `json:"arch"`
	Run     string  `json:"run"`
	Events  []event `json:"events"`
}

// Client queues events without blocking the caller and sends them from one
// goroutine. A full queue drops events.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client
	run  string

	q     chan event
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	sent    atomic.Int64
	dropped atomic.Int64
}

// New starts a client.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:   cfg,
		log:   applog.WithComponent("telemetry"),
		http:  &http.Client{Timeout: cfg.Timeout},
		run:   runID(),
		q:     make(chan event, 4*cfg.BatchSize),
		flush: make(chan chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.loop()
	return c
}

func runID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}

// Enabled reports whether events are sent at all.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a named event. props must not carry personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	e := event{Name: name, At: time.Now().UTC()}
	if len(props) > 0 {
		e.Props = make(map[string]any, len(props))
		for k, v := range props {
			e.Props[k] = v
		}
	}
	select {
	case c.q <- e:
	default:
		c.dropped.Add(1)
	}
}

// Stats returns the number of events sent and dropped so far.
func (c *Client) Stats() (sent, dropped int64) { return c.sent.Load(), c.dropped.Load() }

// Flush sends everything queued before the call and waits for the request,
// or for ctx.
func (c *Client) Flush(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	ack := make(chan struct{})
	select {
	case c.flush <- ack:
	case <-c.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close sends what is queued and stops the client.
func (c *Client) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Client) loop() {
	defer close(c.done)
	tick := time.NewTicker(c.cfg.FlushEvery)
	defer tick.Stop()
	var pending []event
	drain := func() {
		for {
			select {
			case e := <-c.q:
				pending = append(pending, e)
			default:
				return
			}
		}
	}
	for {
		select {
		case e := <-c.q:
			pending = append(pending, e)
			if len(pending) >= c.cfg.BatchSize {
				pending = c.send(pending)
			}
		case <-tick.C:
			pending = c.send(pending)
		case ack := <-c.flush:
			drain()
			pending = c.send(pending)
			close(ack)
		case <-c.stop:
			drain()
			c.send(pending)
			return
		}
	}
}

// send posts events and returns the emptied slice for reuse.
func (c *Client) send(events []event) []event {
	if len(events) == 0 || !c.Enabled() {
		return events[:0]
	}
	body, err := json.Marshal(batch{
		App: "vnplayer", Version: version.String(), OS: runtime.GOOS, Arch: runtime.GOARCH,
		Run: c.run, Events: events,
	})
	if err != nil {
		c.log.Warn("encode telemetry batch", slog.Any("err", err))
		return events[:0]
	}
	if err := c.post(c.cfg.EventsURL, "application/json", body); err != nil {
		c.dropped.Add(int64(len(events)))
		if c.cfg.Debug {
			c.log.Debug("telemetry send failed", slog.Int("events", len(events)), slog.Any("err", err))
		}
		return events[:0]
	}
	c.sent.Add(int64(len(events)))
	if c.cfg.Debug {
		c.log.Debug("telemetry batch sent", slog.Int("events", len(events)))
	}
	return events[:0]
}

func (c *Client) post(url, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// UploadCrash posts a crash report synchronously when opted in.
func (c *Client) UploadCrash(report []byte) error {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return nil
	}
	if err := c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report); err != nil {
		return fmt.Errorf("upload crash report: %w", err)
	}
	return nil
}

// UploadCrash uploads report with a client configured from the environment.
// It is used from the crash handler, where no configured client is at hand.
func UploadCrash(report []byte) error {
	c := &Client{cfg: FromEnv(), http: &http.Client{}}
	c.http.Timeout = c.cfg.Timeout
	return c.UploadCrash(report)
}
