// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seedbridge/seedbridge/internal/dbinterface"
)

// Migration role bits on the sites table.
const (
	SiteRoleSource = 1
	SiteRoleTarget = 2
)

var ErrSiteNotFound = errors.New("site not found")

// Site is a configured tracker account.
type Site struct {
	ID        int       `json:"id"`
	Nickname  string    `json:"nickname"`
	Site      string    `json:"site"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	Cookie    string    `json:"-"`
	Passkey   string    `json:"-"`
	Migration int       `json:"migration"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SiteStatus is the credential/role summary exposed to eligibility checks
// and the API. Secrets never leave the store, only their presence.
type SiteStatus struct {
	Name       string `json:"name"`
	SiteID     string `json:"site"`
	HasCookie  bool   `json:"hasCookie"`
	HasPasskey bool   `json:"hasPasskey"`
	IsSource   bool   `json:"isSource"`
	IsTarget   bool   `json:"isTarget"`
}

// Status derives the exposed summary from the stored row.
func (s *Site) Status() SiteStatus {
	return SiteStatus{
		Name:       s.Nickname,
		SiteID:     s.Site,
		HasCookie:  s.Cookie != "",
		HasPasskey: s.Passkey != "",
		IsSource:   s.Migration&SiteRoleSource != 0,
		IsTarget:   s.Migration&SiteRoleTarget != 0,
	}
}

// SiteStore persists tracker accounts.
type SiteStore struct {
	db dbinterface.Querier
}

func NewSiteStore(db dbinterface.Querier) *SiteStore {
	return &SiteStore{db: db}
}

// Upsert creates or updates a site keyed by nickname and returns the
// stored row.
func (s *SiteStore) Upsert(ctx context.Context, site *Site) (*Site, error) {
	if site == nil {
		return nil, errors.New("site cannot be nil")
	}
	if site.Nickname == "" || site.Site == "" {
		return nil, errors.New("site must include nickname and site identifier")
	}

	query := `
		INSERT INTO sites (nickname, site, base_url, cookie, passkey, migration)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(nickname) DO UPDATE SET
			site = excluded.site,
			base_url = excluded.base_url,
			cookie = excluded.cookie,
			passkey = excluded.passkey,
			migration = excluded.migration,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query,
		site.Nickname,
		site.Site,
		site.BaseURL,
		site.Cookie,
		site.Passkey,
		site.Migration,
	); err != nil {
		return nil, fmt.Errorf("upsert site: %w", err)
	}

	return s.GetByNickname(ctx, site.Nickname)
}

// GetByNickname fetches a single site.
func (s *SiteStore) GetByNickname(ctx context.Context, nickname string) (*Site, error) {
	query := `
		SELECT id, nickname, site, base_url, cookie, passkey, migration, created_at, updated_at
		FROM sites
		WHERE nickname = ?
	`

	row := s.db.QueryRowContext(ctx, query, nickname)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// List returns all configured sites ordered by nickname.
func (s *SiteStore) List(ctx context.Context) ([]*Site, error) {
	query := `
		SELECT id, nickname, site, base_url, cookie, passkey, migration, created_at, updated_at
		FROM sites
		ORDER BY nickname
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	return sites, nil
}

// ListStatuses returns the credential/role summary for every site.
func (s *SiteStore) ListStatuses(ctx context.Context) ([]SiteStatus, error) {
	sites, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]SiteStatus, 0, len(sites))
	for _, site := range sites {
		statuses = append(statuses, site.Status())
	}

	return statuses, nil
}

// Delete removes a site by nickname.
func (s *SiteStore) Delete(ctx context.Context, nickname string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sites WHERE nickname = ?", nickname)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete site rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSiteNotFound
	}

	return nil
}

func scanSite(scanner interface {
	Scan(dest ...any) error
}) (*Site, error) {
	var site Site
	err := scanner.Scan(
		&site.ID,
		&site.Nickname,
		&site.Site,
		&site.BaseURL,
		&site.Cookie,
		&site.Passkey,
		&site.Migration,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &site, nil
}
