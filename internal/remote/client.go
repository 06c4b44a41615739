/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client drives a remote shell over its HTTP API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a client. A trailing slash on baseURL is dropped.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("server %s %s: %s: %s", method, u.Path, resp.Status, e.Error)
		}
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// State returns the current snapshot.
func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var st StateResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/state", nil, &st)
	return st, err
}

// Advance sends the player input and returns the resulting snapshot.
func (c *Client) Advance(ctx context.Context) (StateResponse, error) {
	var st StateResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/advance", nil, &st)
	return st, err
}

// SubmitName answers a name prompt or renames the player.
func (c *Client) SubmitName(ctx context.Context, name string) (StateResponse, error) {
	var st StateResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/name", nameRequest{Name: name}, &st)
	return st, err
}

// Backlog returns up to n recent lines, only those of chapter when it is set.
func (c *Client) Backlog(ctx context.Context, n int, chapter string) ([]LineResponse, error) {
	q := url.Values{"n": {strconv.Itoa(n)}}
	if chapter != "" {
		q.Set("chapter", chapter)
	}
	var out []LineResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/backlog?"+q.Encode(), nil, &out)
	return out, err
}
