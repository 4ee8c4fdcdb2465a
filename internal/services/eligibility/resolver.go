// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package eligibility decides whether a site can act as a cross-seed
// source or target for a given torrent. Pure decision logic, no I/O.
package eligibility

import (
	"strings"

	"github.com/seedbridge/seedbridge/internal/models"
)

// Tag classifies a site for the selection UI.
type Tag string

const (
	// TagUnavailable means no per-torrent record exists for the site.
	TagUnavailable Tag = "unavailable"
	// TagError means the site's credentials rule it out regardless of
	// per-torrent data.
	TagError Tag = "error"
	// TagSuccess means the site is selectable and already carries a
	// confirmable detail link.
	TagSuccess Tag = "success"
	// TagCandidate means the site is selectable only to trigger a
	// lookup, not to confirm directly.
	TagCandidate Tag = "candidate"
)

// Sites that authenticate with a passkey instead of a cookie.
var defaultCookieExempt = []string{
	"mteam",
	"zmpt",
}

// Sites that additionally require a passkey before acting as a source.
var defaultPasskeyRequired = []string{
	"mteam",
	"zmpt",
	"hddolby",
}

// Resolver evaluates site eligibility. Safe for concurrent use; the
// site sets are fixed at construction.
type Resolver struct {
	cookieExempt    map[string]struct{}
	passkeyRequired map[string]struct{}
}

// New builds a resolver. Empty overrides fall back to the compiled-in
// defaults; site identifiers are matched case-insensitively.
func New(cookieExempt, passkeyRequired []string) *Resolver {
	if len(cookieExempt) == 0 {
		cookieExempt = defaultCookieExempt
	}
	if len(passkeyRequired) == 0 {
		passkeyRequired = defaultPasskeyRequired
	}

	return &Resolver{
		cookieExempt:    toSet(cookieExempt),
		passkeyRequired: toSet(passkeyRequired),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func (r *Resolver) isCookieExempt(siteID string) bool {
	_, ok := r.cookieExempt[strings.ToLower(siteID)]
	return ok
}

func (r *Resolver) isPasskeyRequired(siteID string) bool {
	_, ok := r.passkeyRequired[strings.ToLower(siteID)]
	return ok
}

// TagFor classifies one site for one torrent. Rules apply in order:
// missing record, then credential checks, then per-torrent comment.
func (r *Resolver) TagFor(site models.SiteStatus, rec *models.SiteRecord) Tag {
	if rec == nil {
		return TagUnavailable
	}

	if !site.HasCookie && !r.isCookieExempt(site.SiteID) {
		return TagError
	}

	if r.isPasskeyRequired(site.SiteID) && !site.HasPasskey {
		return TagError
	}

	if strings.TrimSpace(rec.Comment) != "" {
		return TagSuccess
	}

	return TagCandidate
}

// IsSourceSelectable reports whether siteName (the configured nickname)
// can act as the source for the torrent described by records. Records
// are keyed by the external site identifier, since that is what lookup
// results carry; nicknames are display names and may differ. A source
// needs a confirmable detail link, the source role, and credentials
// that pass the tag rules.
func (r *Resolver) IsSourceSelectable(records map[string]*models.SiteRecord, statuses []models.SiteStatus, siteName string) bool {
	var site *models.SiteStatus
	for i := range statuses {
		if statuses[i].Name == siteName {
			site = &statuses[i]
			break
		}
	}
	if site == nil || !site.IsSource {
		return false
	}

	rec, ok := records[site.SiteID]
	if !ok || rec == nil {
		return false
	}

	if strings.TrimSpace(rec.Comment) == "" {
		return false
	}

	return r.TagFor(*site, rec) == TagSuccess
}

// Tags evaluates every site for one torrent. The result is keyed by
// site nickname for display; records are looked up by the external
// site identifier the lookup service reports.
func (r *Resolver) Tags(records map[string]*models.SiteRecord, statuses []models.SiteStatus) map[string]Tag {
	tags := make(map[string]Tag, len(statuses))
	for _, site := range statuses {
		tags[site.Name] = r.TagFor(site, records[site.SiteID])
	}
	return tags
}
