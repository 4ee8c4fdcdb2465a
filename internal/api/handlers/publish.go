// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/seedbridge/seedbridge/internal/domain"
	"github.com/seedbridge/seedbridge/internal/metrics"
	"github.com/seedbridge/seedbridge/internal/models"
	"github.com/seedbridge/seedbridge/internal/services/publish"
)

// PublishHandler serves concurrency resolution and the synchronous
// multi-site publish call.
type PublishHandler struct {
	orchestrator *publish.Orchestrator
	config       *domain.Config
	metrics      *metrics.Manager
}

func NewPublishHandler(orchestrator *publish.Orchestrator, cfg *domain.Config, metricsManager *metrics.Manager) *PublishHandler {
	return &PublishHandler{
		orchestrator: orchestrator,
		config:       cfg,
		metrics:      metricsManager,
	}
}

func (h *PublishHandler) Routes(r chi.Router) {
	r.Route("/cross-seed/publish", func(r chi.Router) {
		r.Get("/concurrency", h.GetConcurrency)
		r.Post("/", h.Publish)
	})
}

// GetConcurrency reports the decision the configured policy yields.
// targetCount is optional and only meaningful for "all" mode.
func (h *PublishHandler) GetConcurrency(w http.ResponseWriter, r *http.Request) {
	targetCount := 0
	if raw := r.URL.Query().Get("targetCount"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondError(w, http.StatusBadRequest, "targetCount must be a non-negative integer")
			return
		}
		targetCount = parsed
	}

	decision := publish.Resolve(
		publish.ParseMode(h.config.PublishConcurrencyMode),
		h.config.PublishConcurrencyManual,
		targetCount,
		0,
		h.config.PublishMaxConcurrency,
	)

	RespondJSON(w, http.StatusOK, decision)
}

type publishRequest struct {
	Torrent         models.TorrentGroup `json:"torrent"`
	SourceSite      string              `json:"sourceSite"`
	TorrentID       string              `json:"torrentId"`
	TargetSites     []string            `json:"targetSites"`
	ConcurrencyMode string              `json:"concurrencyMode,omitempty"`
	ManualValue     int                 `json:"manualValue,omitempty"`
}

// Publish runs one multi-site publish. Synchronous for the caller but
// internally parallel; returns once every target job finished.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.Torrent.Valid() {
		RespondError(w, http.StatusBadRequest, "torrent name and positive size are required")
		return
	}
	if len(req.TargetSites) == 0 {
		RespondError(w, http.StatusBadRequest, "no target sites selected")
		return
	}

	mode := h.config.PublishConcurrencyMode
	manual := h.config.PublishConcurrencyManual
	if req.ConcurrencyMode != "" {
		mode = req.ConcurrencyMode
		manual = req.ManualValue
	}

	decision := publish.Resolve(
		publish.ParseMode(mode),
		manual,
		len(req.TargetSites),
		0,
		h.config.PublishMaxConcurrency,
	)

	started := time.Now()
	result, err := h.orchestrator.Publish(r.Context(), publish.Request{
		Torrent:     req.Torrent,
		SourceSite:  req.SourceSite,
		TorrentID:   req.TorrentID,
		TargetSites: req.TargetSites,
		Decision:    decision,
	})
	if err != nil {
		if errors.Is(err, publish.ErrNoTargets) {
			RespondError(w, http.StatusBadRequest, "no target sites selected")
			return
		}
		log.Error().Err(err).Str("torrent", req.Torrent.Name).Msg("Publish failed")
		RespondError(w, http.StatusInternalServerError, "Publish failed")
		return
	}

	if h.metrics != nil {
		h.metrics.PublishDuration.Observe(time.Since(started).Seconds())
		h.metrics.PublishJobs.WithLabelValues("succeeded").Add(float64(len(result.Succeeded)))
		h.metrics.PublishJobs.WithLabelValues("skipped").Add(float64(len(result.Skipped)))
		h.metrics.PublishJobs.WithLabelValues("failed").Add(float64(len(result.Failed)))
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"concurrency": decision,
		"result":      result,
	})
}
