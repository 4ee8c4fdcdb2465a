// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/seedbridge/seedbridge/internal/models"
	"github.com/seedbridge/seedbridge/internal/services/batchquery"
	"github.com/seedbridge/seedbridge/internal/services/eligibility"
)

// CrossSeedHandler serves batch lookup submission/polling and
// per-torrent eligibility resolution.
type CrossSeedHandler struct {
	manager     *batchquery.Manager
	resolver    *eligibility.Resolver
	siteStore   *models.SiteStore
	recordStore *models.SeedRecordStore
}

func NewCrossSeedHandler(manager *batchquery.Manager, resolver *eligibility.Resolver, siteStore *models.SiteStore, recordStore *models.SeedRecordStore) *CrossSeedHandler {
	return &CrossSeedHandler{
		manager:     manager,
		resolver:    resolver,
		siteStore:   siteStore,
		recordStore: recordStore,
	}
}

func (h *CrossSeedHandler) Routes(r chi.Router) {
	r.Route("/cross-seed", func(r chi.Router) {
		r.Post("/query/batch", h.SubmitBatchQuery)
		r.Get("/query/batch/{taskID}", h.GetBatchProgress)
		r.Post("/eligibility", h.ResolveEligibility)
	})
}

type batchQueryRequest struct {
	Items      []models.TorrentGroup `json:"items"`
	MaxGroups  int                   `json:"maxGroups"`
	ForceQuery bool                  `json:"forceQuery"`
}

// SubmitBatchQuery starts a bulk lookup and returns its task id
// immediately; progress is polled via GetBatchProgress.
func (h *CrossSeedHandler) SubmitBatchQuery(w http.ResponseWriter, r *http.Request) {
	var req batchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	taskID, err := h.manager.Submit(req.Items, req.MaxGroups, req.ForceQuery)
	if err != nil {
		if errors.Is(err, batchquery.ErrInvalidInput) {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to submit batch query")
		RespondError(w, http.StatusInternalServerError, "Failed to submit batch query")
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

// GetBatchProgress returns the latest snapshot for a batch task.
func (h *CrossSeedHandler) GetBatchProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	snap, err := h.manager.GetTask(taskID)
	if err != nil {
		if errors.Is(err, batchquery.ErrTaskNotFound) {
			RespondError(w, http.StatusNotFound, "Task not found")
			return
		}
		log.Error().Err(err).Str("taskID", taskID).Msg("Failed to load batch task")
		RespondError(w, http.StatusInternalServerError, "Failed to load batch task")
		return
	}

	RespondJSON(w, http.StatusOK, snap)
}

type eligibilityRequest struct {
	TorrentName string `json:"torrentName"`
}

type eligibilityResponse struct {
	Tags              map[string]eligibility.Tag `json:"tags"`
	SelectableSources []string                   `json:"selectableSources"`
}

// ResolveEligibility evaluates every configured site for one torrent.
func (h *CrossSeedHandler) ResolveEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TorrentName == "" {
		RespondError(w, http.StatusBadRequest, "torrentName is required")
		return
	}

	statuses, err := h.siteStore.ListStatuses(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list site statuses")
		RespondError(w, http.StatusInternalServerError, "Failed to list site statuses")
		return
	}

	records, err := h.recordStore.GetForTorrent(r.Context(), req.TorrentName)
	if err != nil {
		log.Error().Err(err).Str("torrent", req.TorrentName).Msg("Failed to load site records")
		RespondError(w, http.StatusInternalServerError, "Failed to load site records")
		return
	}

	resp := eligibilityResponse{
		Tags:              h.resolver.Tags(records, statuses),
		SelectableSources: []string{},
	}
	for _, status := range statuses {
		if h.resolver.IsSourceSelectable(records, statuses, status.Name) {
			resp.SelectableSources = append(resp.SelectableSources, status.Name)
		}
	}

	RespondJSON(w, http.StatusOK, resp)
}
