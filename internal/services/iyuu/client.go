// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package iyuu wraps the external cross-seed lookup service. One call
// resolves the candidate site matches for a single torrent group.
package iyuu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seedbridge/seedbridge/internal/buildinfo"
	"github.com/seedbridge/seedbridge/internal/models"
)

// ErrInvalidInput marks a torrent group that cannot be looked up.
var ErrInvalidInput = errors.New("invalid lookup input")

// LookupError wraps a remote or transport failure for one lookup call.
// The client never retries; retry policy belongs to the caller.
type LookupError struct {
	Group string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup for %q failed: %v", e.Group, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Match is one candidate discovered on a remote site.
type Match struct {
	Site      string `json:"site"`
	TorrentID string `json:"torrentId"`
	Comment   string `json:"comment,omitempty"`
	Seeding   bool   `json:"seeding"`
}

// Client talks to an IYUU-compatible lookup endpoint. Stateless and
// safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a lookup client with a bounded per-call timeout.
func NewClient(baseURL, token string, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	timeout := time.Duration(timeoutSeconds) * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

type lookupRequest struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Token string `json:"token,omitempty"`
}

type lookupResponse struct {
	Code    int     `json:"code"`
	Message string  `json:"msg"`
	Data    []Match `json:"data"`
}

// Lookup resolves candidate matches for one torrent group. Remote and
// transport failures come back as a *LookupError.
func (c *Client) Lookup(ctx context.Context, group models.TorrentGroup) ([]Match, error) {
	if !group.Valid() {
		return nil, fmt.Errorf("%w: name and positive size required", ErrInvalidInput)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(lookupRequest{
		Name:  group.Name,
		Size:  group.Size,
		Token: c.token,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/cross-seed/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Group: group.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &LookupError{Group: group.Name, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &LookupError{Group: group.Name, Err: fmt.Errorf("decode response: %w", err)}
	}

	if decoded.Code != 0 {
		return nil, &LookupError{Group: group.Name, Err: fmt.Errorf("remote error %d: %s", decoded.Code, decoded.Message)}
	}

	matches := decoded.Data
	if matches == nil {
		matches = []Match{}
	}

	return matches, nil
}
