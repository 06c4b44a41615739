/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package remote exposes a running playback session over HTTP so a browser
// or a second device can drive it. Display changes stream over a websocket.
//
// Routes:
//
//	GET  /api/state     current state snapshot
//	POST /api/advance   the single player input
//	POST /api/name      {"name": "..."} answers a name prompt or renames the player
//	GET  /api/backlog   recent lines, ?n= caps the count, ?chapter= keeps one chapter
//	GET  /ws            event stream; accepts {"type":"advance"} and {"type":"name","name":"..."}
//
// With a secret configured every route but /healthz needs a bearer token
// (header, or ?token= for websocket clients).
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vnplayer/internal/backlog"
	"vnplayer/internal/display"
	"vnplayer/internal/domain"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/sched"
	"vnplayer/internal/textlayout"
)

// Options configures a Server.
type Options struct {
	Addr   string
	Secret string
	// Box pre-wraps dialogue so clients can render stable lines.
	Box textlayout.Box
	// Timeout bounds how long a request waits for the playback loop.
	Timeout time.Duration
	Logger  *slog.Logger
}

// StateResponse is the snapshot served by /api/state and pushed on state changes.
type StateResponse struct {
	State   string             `json:"state"`
	Chapter string             `json:"chapter,omitempty"`
	Title   string             `json:"title,omitempty"`
	Number  int                `json:"number,omitempty"`
	Entry   int                `json:"entry"`
	Speaker string             `json:"speaker"`
	Text    string             `json:"text"`
	Full    string             `json:"full"`
	Lines   []string           `json:"lines"`
	Player  string             `json:"player"`
	Alpha   map[string]float64 `json:"alpha"`
	Image   map[string]string  `json:"image"`
}

// LineResponse is one backlog line.
type LineResponse struct {
	Chapter string `json:"chapter"`
	Entry   int    `json:"entry"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type wsMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Server is the remote shell. It is the session's Display (through Display),
// its NamePrompter and one of its Observers.
type Server struct {
	playback.NopObserver

	opts     Options
	log      *slog.Logger
	hub      *hub
	router   *gin.Engine
	upgrader websocket.Upgrader

	loop *sched.Loop
	sess *playback.Session
	rec  *display.Recorder
	back *backlog.Backlog

	// touched on the loop goroutine only
	layout  textlayout.Layout
	confirm func(string)
}

var (
	_ playback.Observer     = (*Server)(nil)
	_ playback.NamePrompter = (*Server)(nil)
)

// New builds the router. Bind must be called before requests arrive.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("remote")
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:   opts,
		log:    l,
		hub:    newHub(l),
		layout: textlayout.Layout{Box: opts.Box},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// Bind attaches the session driven by loop. rec must be part of the
// session's display; back may be nil.
func (s *Server) Bind(loop *sched.Loop, sess *playback.Session, rec *display.Recorder, back *backlog.Backlog) {
	s.loop, s.sess, s.rec, s.back = loop, sess, rec, back
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int { return s.hub.count() }

// Run serves on opts.Addr until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("remote shell listening", slog.String("addr", s.opts.Addr), slog.Bool("auth", s.opts.Secret != ""))
	if s.opts.Secret == "" && !loopback(s.opts.Addr) {
		s.log.Warn("remote shell is reachable from the network without a secret", slog.String("addr", s.opts.Addr))
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// loopback reports whether addr only binds the local host. An empty host
// listens on every interface.
func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	if s.opts.Secret != "" {
		api.Use(s.auth())
	}
	api.GET("/state", s.getState)
	api.POST("/advance", s.postAdvance)
	api.POST("/name", s.postName)
	api.GET("/backlog", s.getBacklog)

	if s.opts.Secret != "" {
		r.GET("/ws", s.auth(), s.serveWS)
	} else {
		r.GET("/ws", s.serveWS)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request", slog.String("method", c.Request.Method), slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()), slog.Duration("took", time.Since(start)))
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			token = strings.TrimSpace(h[7:])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		sub, err := VerifyToken(s.opts.Secret, token, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("subject", sub)
		c.Next()
	}
}

// onLoop runs fn on the playback goroutine; it writes the error response and
// returns false when the loop is gone or busy past the timeout.
func (s *Server) onLoop(c *gin.Context, fn func()) bool {
	if s.loop == nil || s.sess == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no session bound"})
		return false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.Timeout)
	defer cancel()
	if err := s.loop.Do(ctx, fn); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) getState(c *gin.Context) {
	var st StateResponse
	if s.onLoop(c, func() { st = s.snapshot() }) {
		c.JSON(http.StatusOK, st)
	}
}

func (s *Server) postAdvance(c *gin.Context) {
	var st StateResponse
	if s.onLoop(c, func() {
		s.sess.Advance()
		st = s.snapshot()
	}) {
		c.JSON(http.StatusOK, st)
	}
}

func (s *Server) postName(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	var st StateResponse
	var err error
	if !s.onLoop(c, func() {
		err = s.submitName(req.Name)
		st = s.snapshot()
	}) {
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// submitName answers a pending prompt, or renames the player outside one.
// Loop goroutine only.
func (s *Server) submitName(name string) error {
	if s.sess.State() == playback.AwaitingName && s.confirm != nil {
		confirm := s.confirm
		s.confirm = nil
		confirm(name)
		if s.sess.State() == playback.AwaitingName {
			return playback.ErrInvalidName
		}
		return nil
	}
	return s.sess.SetPlayerName(name)
}

func (s *Server) getBacklog(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
		return
	}
	out := []LineResponse{}
	if s.back != nil {
		var lines []backlog.Line
		if id := c.Query("chapter"); id != "" {
			lines = s.back.Chapter(id)
			if n > 0 && len(lines) > n {
				lines = lines[len(lines)-n:]
			}
		} else {
			lines = s.back.Recent(n)
		}
		for _, l := range lines {
			out = append(out, LineResponse{Chapter: l.Chapter, Entry: l.Entry, Speaker: l.Speaker, Text: l.Text})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendQueue), closed: make(chan struct{})}
	go cl.writePump()
	if s.loop != nil && s.sess != nil {
		// Joining the hub on the loop goroutine puts hello ahead of every
		// event broadcast after the snapshot.
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.Timeout)
		err := s.loop.Do(ctx, func() {
			st := s.snapshot()
			cl.sendEvent(s.log, Event{Type: "hello", State: &st})
			s.hub.add(cl)
		})
		cancel()
		if err != nil {
			s.loop.Post(func() { s.hub.remove(cl) })
			return
		}
	} else {
		s.hub.add(cl)
	}
	defer s.hub.remove(cl)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if s.loop == nil || s.sess == nil {
			cl.sendEvent(s.log, Event{Type: "error", Error: "no session bound"})
			continue
		}
		switch msg.Type {
		case "advance":
			s.loop.Post(s.sess.Advance)
		case "name":
			s.loop.Post(func() {
				if err := s.submitName(msg.Name); err != nil {
					cl.sendEvent(s.log, Event{Type: "error", Error: err.Error()})
				}
			})
		default:
			cl.sendEvent(s.log, Event{Type: "error", Error: "unknown message type " + strconv.Quote(msg.Type)})
		}
	}
}

// snapshot reads the session. Loop goroutine only.
func (s *Server) snapshot() StateResponse {
	d := s.rec.Snapshot()
	cur := s.sess.Cursor()
	st := StateResponse{
		State:   s.sess.State().String(),
		Entry:   cur.Index,
		Speaker: d.Speaker,
		Text:    d.Text,
		Full:    s.sess.Text(),
		Player:  s.sess.PlayerName(),
		Alpha:   d.Alpha,
		Image:   d.Image,
	}
	if ch := cur.Chapter; ch != nil {
		st.Chapter, st.Title, st.Number = ch.ID, ch.Title, ch.Number
	}
	st.Lines = s.layout.Lines(st.Full, st.Text)
	if st.Lines == nil {
		st.Lines = []string{}
	}
	return st
}

// RequestName implements playback.NamePrompter.
func (s *Server) RequestName(confirm func(string)) {
	s.confirm = confirm
	s.hub.broadcast(Event{Type: "name_request"})
}

// StateChanged pushes a fresh snapshot.
func (s *Server) StateChanged(_, _ playback.State) {
	if s.hub.count() == 0 || s.sess == nil {
		return
	}
	st := s.snapshot()
	s.hub.broadcast(Event{Type: "state", State: &st})
}

func (s *Server) EntryShown(ch *domain.Chapter, index int, speaker, text string) {
	s.hub.broadcast(Event{Type: "entry", Chapter: ch.ID, Entry: index, Text: text})
}

func (s *Server) SessionFinished() { s.hub.broadcast(Event{Type: "finished"}) }

// Display returns the display that streams changes to websocket clients.
// Combine it with the bound Recorder through display.Multi.
func (s *Server) Display() display.Display { return pushDisplay{s} }

type pushDisplay struct{ s *Server }

func (p pushDisplay) SetText(t string) {
	if p.s.hub.count() == 0 {
		return
	}
	full := t
	if p.s.sess != nil {
		full = p.s.sess.Text()
	}
	p.s.hub.broadcast(Event{Type: "text", Text: t, Lines: p.s.layout.Lines(full, t)})
}

func (p pushDisplay) SetSpeakerName(name string) {
	p.s.hub.broadcast(Event{Type: "speaker", Text: name})
}

func (p pushDisplay) SetLayerAlpha(l display.Layer, a float64) {
	p.s.hub.broadcast(Event{Type: "alpha", Layer: l.String(), Alpha: &a})
}

func (p pushDisplay) SetLayerImage(l display.Layer, a *domain.Asset) {
	name := a.Name()
	p.s.hub.broadcast(Event{Type: "image", Layer: l.String(), Image: &name})
}

func (c *client) sendEvent(l *slog.Logger, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		l.Warn("encode event failed", slog.Any("err", err))
		return
	}
	select {
	case c.send <- b:
	case <-c.closed:
	default:
		l.Warn("websocket queue full, event dropped", slog.String("type", ev.Type))
	}
}
