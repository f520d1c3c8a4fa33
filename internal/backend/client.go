/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gohymnbook/internal/config"
)

// Client is a bearer-token HTTP client for the library API. The token comes
// from the OS keychain via the config package; it is never read from disk.
type Client struct {
	BaseURL string
	Token   string
	client  *http.Client
}

// NewClient creates a new library client. baseURL may include a trailing
// slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewFromConfig builds a client from the library settings, honoring the
// configured timeout and TLS mode.
func NewFromConfig(lc config.LibraryConfig, token string) *Client {
	c := NewClient(lc.BaseURL, token)
	c.client.Timeout = lc.EffectiveTimeout()
	if lc.TLSInsecure {
		c.client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, dest any) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

// Book is a minimal projection for listing.
type Book struct {
	ID        int64     `json:"id"`
	StableID  string    `json:"stable_id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Hymns     int       `json:"hymns"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// ListBooks returns the published books (read-only).
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var list []Book
	if err := c.doJSON(ctx, http.MethodGet, "/api/books", nil, "", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PublishResult is the server acknowledgement for an uploaded manifest.
type PublishResult struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version"`
}

// Publish uploads a YAML book manifest. A non-empty stableID pins the upsert
// key; otherwise the server derives one from the book name.
func (c *Client) Publish(ctx context.Context, manifest []byte, stableID string) (*PublishResult, error) {
	p := "/api/books"
	if s := strings.TrimSpace(stableID); s != "" {
		p += "?stable_id=" + url.QueryEscape(s)
	}
	var res PublishResult
	if err := c.doJSON(ctx, http.MethodPost, p, bytes.NewReader(manifest), "application/x-yaml", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PullManifest downloads the stored YAML manifest for a book.
func (c *Client) PullManifest(ctx context.Context, bookID int64) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d/manifest", bookID), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// IndexSnapshotEnvelope matches the server response for the latest index snapshot of a book.
type IndexSnapshotEnvelope struct {
	BookID    int64       `json:"book_id"`
	Version   int64       `json:"version"`
	CreatedAt string      `json:"created_at"`
	Snapshot  interface{} `json:"snapshot"`
}

// GetIndexSnapshot fetches the latest index snapshot for a book.
func (c *Client) GetIndexSnapshot(ctx context.Context, bookID int64) (*IndexSnapshotEnvelope, error) {
	var env IndexSnapshotEnvelope
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d/index", bookID), nil, "", &env); err != nil {
		return nil, err
	}
	return &env, nil
}
