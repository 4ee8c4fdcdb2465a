// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedbridge/seedbridge/internal/models"
)

func testJob() Job {
	return Job{
		TargetSite: "siteA",
		SourceSite: "origin",
		TorrentID:  "42",
		Torrent:    models.TorrentGroup{Name: "Show.S01", Size: 2048},
	}
}

func TestGatewayPublishSuccess(t *testing.T) {
	var gotPayload publishPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			json.NewEncoder(w).Encode(publishReply{Exists: false})
		case "/api/migrate/publish":
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			json.NewEncoder(w).Encode(publishReply{Success: true})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "tok", 5)

	require.NoError(t, client.PublishToSite(context.Background(), testJob()))
	assert.Equal(t, "siteA", gotPayload.TargetSite)
	assert.Equal(t, "origin", gotPayload.SourceSite)
	assert.Equal(t, "42", gotPayload.TorrentID)
	assert.EqualValues(t, 2048, gotPayload.Size)
}

func TestGatewayExistsPreCheckShortCircuits(t *testing.T) {
	var publishCalls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			json.NewEncoder(w).Encode(publishReply{Exists: true})
		case "/api/migrate/publish":
			atomic.AddInt64(&publishCalls, 1)
			json.NewEncoder(w).Encode(publishReply{Success: true})
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 5)

	err := client.PublishToSite(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Zero(t, atomic.LoadInt64(&publishCalls), "publish must not run when target already has the torrent")
}

func TestGatewayExistsPreCheckRetriesTransientFailure(t *testing.T) {
	var existsCalls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			if atomic.AddInt64(&existsCalls, 1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(publishReply{Exists: true})
		case "/api/migrate/publish":
			t.Error("publish must not be reached")
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 5)

	err := client.PublishToSite(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.EqualValues(t, 3, atomic.LoadInt64(&existsCalls))
}

func TestGatewayConflictMapsToAlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			json.NewEncoder(w).Encode(publishReply{Exists: false})
		case "/api/migrate/publish":
			http.Error(w, "duplicate", http.StatusConflict)
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 5)

	err := client.PublishToSite(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGatewayRejectionIsPublishError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			json.NewEncoder(w).Encode(publishReply{Exists: false})
		case "/api/migrate/publish":
			json.NewEncoder(w).Encode(publishReply{Success: false, Message: "quota exceeded"})
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 5)

	err := client.PublishToSite(context.Background(), testJob())
	require.Error(t, err)

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "siteA", pubErr.Site)
	assert.Contains(t, pubErr.Error(), "quota exceeded")
}

func TestGatewayPublishNotRetried(t *testing.T) {
	var publishCalls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/migrate/exists":
			json.NewEncoder(w).Encode(publishReply{Exists: false})
		case "/api/migrate/publish":
			atomic.AddInt64(&publishCalls, 1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "", 5)

	err := client.PublishToSite(context.Background(), testJob())
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&publishCalls), "publish POST is never retried")
}
