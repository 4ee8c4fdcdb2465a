// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/seedbridge/seedbridge/internal/buildinfo"
)

// GatewayClient publishes to target sites through the migration
// gateway, which owns the tracker-specific upload mechanics.
type GatewayClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

// NewGatewayClient builds a gateway-backed SitePublisher.
func NewGatewayClient(baseURL, token string, timeoutSeconds int) *GatewayClient {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}

	timeout := time.Duration(timeoutSeconds) * time.Second

	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

type publishPayload struct {
	TargetSite string `json:"targetSite"`
	SourceSite string `json:"sourceSite"`
	TorrentID  string `json:"torrentId"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	SavePath   string `json:"savePath,omitempty"`
}

type publishReply struct {
	Success bool   `json:"success"`
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// PublishToSite implements SitePublisher. The exists pre-check is
// idempotent and retried on transient failures; the publish POST is
// not retried since a timed-out upload may still have landed.
func (c *GatewayClient) PublishToSite(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	exists, err := c.existsOnTarget(ctx, job)
	if err == nil && exists {
		return ErrAlreadyExists
	}
	// A failed pre-check is not fatal; the gateway rejects duplicates
	// on publish as well.

	body, err := json.Marshal(publishPayload{
		TargetSite: job.TargetSite,
		SourceSite: job.SourceSite,
		TorrentID:  job.TorrentID,
		Name:       job.Torrent.Name,
		Size:       job.Torrent.Size,
		SavePath:   job.Torrent.SavePath,
	})
	if err != nil {
		return &PublishError{Site: job.TargetSite, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/migrate/publish", bytes.NewReader(body))
	if err != nil {
		return &PublishError{Site: job.TargetSite, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &PublishError{Site: job.TargetSite, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ErrAlreadyExists
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &PublishError{Site: job.TargetSite, Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}

	var reply publishReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return &PublishError{Site: job.TargetSite, Err: fmt.Errorf("decode reply: %w", err)}
	}

	if reply.Exists {
		return ErrAlreadyExists
	}
	if !reply.Success {
		return &PublishError{Site: job.TargetSite, Err: fmt.Errorf("gateway rejected publish: %s", reply.Message)}
	}

	return nil
}

func (c *GatewayClient) existsOnTarget(ctx context.Context, job Job) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/migrate/exists?site=%s&name=%s&size=%d",
		c.baseURL,
		url.QueryEscape(job.TargetSite),
		url.QueryEscape(job.Torrent.Name),
		job.Torrent.Size,
	)

	var exists bool

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			c.setAuth(req)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("exists check returned status %d", resp.StatusCode)
			}

			var reply publishReply
			if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
				return err
			}

			exists = reply.Exists
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)

	return exists, err
}

func (c *GatewayClient) setAuth(req *http.Request) {
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
