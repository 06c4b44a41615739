/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remote

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
)

// Event is one message pushed to websocket clients.
type Event struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Lines   []string       `json:"lines,omitempty"`
	Layer   string         `json:"layer,omitempty"`
	Alpha   *float64       `json:"alpha,omitempty"`
	Image   *string        `json:"image,omitempty"`
	State   *StateResponse `json:"state,omitempty"`
	Chapter string         `json:"chapter,omitempty"`
	Entry   int            `json:"entry,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// hub fans events out to connected clients. A client whose queue is full
// misses the event rather than stalling playback.
type hub struct {
	log     *slog.Logger
	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub(l *slog.Logger) *hub { return &hub{log: l, clients: map[*client]struct{}{}} }

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket client connected", slog.Int("clients", n))
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.log.Debug("websocket client disconnected", slog.Int("clients", n))
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(ev Event) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode event failed", slog.String("type", ev.Type), slog.Any("err", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("websocket queue full, event dropped", slog.String("type", ev.Type))
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-t.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
