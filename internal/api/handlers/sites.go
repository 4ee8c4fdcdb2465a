// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/seedbridge/seedbridge/internal/models"
)

// SitesHandler manages tracker accounts and exposes their status for
// the selection UI.
type SitesHandler struct {
	siteStore *models.SiteStore
}

func NewSitesHandler(siteStore *models.SiteStore) *SitesHandler {
	return &SitesHandler{siteStore: siteStore}
}

func (h *SitesHandler) Routes(r chi.Router) {
	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.List)
		r.Put("/", h.Upsert)
		r.Get("/status", h.GetStatus)
		r.Delete("/{nickname}", h.Delete)
	})
}

// GetStatus returns the credential/role summary for every configured
// site. Secrets are never included, only their presence.
func (h *SitesHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.siteStore.ListStatuses(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list site statuses")
		RespondError(w, http.StatusInternalServerError, "Failed to list site statuses")
		return
	}

	if statuses == nil {
		statuses = []models.SiteStatus{}
	}

	RespondJSON(w, http.StatusOK, statuses)
}

// List returns the configured sites without credential values.
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.siteStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sites")
		RespondError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}

	if sites == nil {
		sites = []*models.Site{}
	}

	RespondJSON(w, http.StatusOK, sites)
}

type upsertSiteRequest struct {
	Nickname string `json:"nickname"`
	Site     string `json:"site"`
	BaseURL  string `json:"baseUrl"`
	Cookie   string `json:"cookie"`
	Passkey  string `json:"passkey"`
	IsSource bool   `json:"isSource"`
	IsTarget bool   `json:"isTarget"`
}

// Upsert creates or updates a site keyed by nickname.
func (h *SitesHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Nickname = strings.TrimSpace(req.Nickname)
	req.Site = strings.TrimSpace(req.Site)
	if req.Nickname == "" || req.Site == "" {
		RespondError(w, http.StatusBadRequest, "nickname and site are required")
		return
	}

	migration := 0
	if req.IsSource {
		migration |= models.SiteRoleSource
	}
	if req.IsTarget {
		migration |= models.SiteRoleTarget
	}

	site, err := h.siteStore.Upsert(r.Context(), &models.Site{
		Nickname:  req.Nickname,
		Site:      req.Site,
		BaseURL:   req.BaseURL,
		Cookie:    req.Cookie,
		Passkey:   req.Passkey,
		Migration: migration,
	})
	if err != nil {
		log.Error().Err(err).Str("nickname", req.Nickname).Msg("Failed to upsert site")
		RespondError(w, http.StatusInternalServerError, "Failed to save site")
		return
	}

	RespondJSON(w, http.StatusOK, site)
}

// Delete removes a site by nickname.
func (h *SitesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")

	if err := h.siteStore.Delete(r.Context(), nickname); err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			RespondError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Error().Err(err).Str("nickname", nickname).Msg("Failed to delete site")
		RespondError(w, http.StatusInternalServerError, "Failed to delete site")
		return
	}

	RespondJSON(w, http.StatusNoContent, nil)
}
