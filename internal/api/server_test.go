// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedbridge/seedbridge/internal/config"
	"github.com/seedbridge/seedbridge/internal/database"
	"github.com/seedbridge/seedbridge/internal/domain"
	"github.com/seedbridge/seedbridge/internal/models"
	"github.com/seedbridge/seedbridge/internal/services/batchquery"
	"github.com/seedbridge/seedbridge/internal/services/eligibility"
	"github.com/seedbridge/seedbridge/internal/services/iyuu"
	"github.com/seedbridge/seedbridge/internal/services/publish"
)

type noopLookup struct{}

func (noopLookup) Lookup(ctx context.Context, group models.TorrentGroup) ([]iyuu.Match, error) {
	return nil, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishToSite(ctx context.Context, job publish.Job) error {
	return nil
}

func newTestServer(t *testing.T, baseURL string) *Server {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recordStore := models.NewSeedRecordStore(db)

	return NewServer(&Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{
				Host:    "localhost",
				Port:    0,
				BaseURL: baseURL,
			},
		},
		Version:      "test",
		DB:           db,
		SiteStore:    models.NewSiteStore(db),
		RecordStore:  recordStore,
		BatchManager: batchquery.NewManager(noopLookup{}, recordStore, batchquery.Options{}),
		Resolver:     eligibility.New(nil, nil),
		Orchestrator: publish.NewOrchestrator(noopPublisher{}),
	})
}

func TestHandlerHealthRoutes(t *testing.T) {
	handler := newTestServer(t, "/").Handler()

	for _, path := range []string{"/health", "/healthz/liveness", "/healthz/readiness"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHandlerMountsAPIRoutes(t *testing.T) {
	handler := newTestServer(t, "/").Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sites/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cross-seed/publish/concurrency", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRootRejectedWithCustomBaseURL(t *testing.T) {
	handler := newTestServer(t, "/seedbridge/").Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/seedbridge/api/sites/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
