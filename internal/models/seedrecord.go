// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seedbridge/seedbridge/internal/dbinterface"
)

// RecordState describes whether a torrent is known on a site.
type RecordState string

const (
	RecordStateSeeding    RecordState = "seeding"
	RecordStateNotSeeding RecordState = "not_seeding"
	RecordStateNotExist   RecordState = "not_exist"
)

// SiteRecord is the per-(torrent, site) presence record kept from lookup
// results. A non-empty Comment points at the source torrent page.
type SiteRecord struct {
	TorrentName   string      `json:"torrentName"`
	SiteName      string      `json:"siteName"`
	State         RecordState `json:"state"`
	Comment       string      `json:"comment,omitempty"`
	UploadedBytes int64       `json:"uploadedBytes"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// SeedRecordStore persists per-site presence records. Torrent and site
// names are interned through the string pool since the same torrent name
// repeats once per site row.
type SeedRecordStore struct {
	db dbinterface.TxQuerier
}

func NewSeedRecordStore(db dbinterface.TxQuerier) *SeedRecordStore {
	return &SeedRecordStore{db: db}
}

// Upsert writes a record and reports whether it is new. A record counts
// as new until it carries a comment: rows first seen without one are
// unconfirmed hints, so the lookup that fills the comment in still
// reports created. Batch query stats rely on this distinction.
func (s *SeedRecordStore) Upsert(ctx context.Context, rec *SiteRecord) (created bool, err error) {
	if rec == nil {
		return false, errors.New("record cannot be nil")
	}
	if rec.TorrentName == "" || rec.SiteName == "" {
		return false, errors.New("record must include torrent and site names")
	}
	if rec.State == "" {
		rec.State = RecordStateNotExist
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	ids, err := dbinterface.InternStrings(ctx, tx, rec.TorrentName, rec.SiteName)
	if err != nil {
		return false, fmt.Errorf("intern record names: %w", err)
	}

	var confirmed int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM torrent_sites WHERE torrent_name_id = ? AND site_name_id = ? AND comment != ''",
		ids[0], ids[1]).Scan(&confirmed)
	if err != nil {
		return false, fmt.Errorf("check existing record: %w", err)
	}

	query := `
		INSERT INTO torrent_sites (torrent_name_id, site_name_id, state, comment, uploaded_bytes, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(torrent_name_id, site_name_id) DO UPDATE SET
			state = excluded.state,
			comment = excluded.comment,
			uploaded_bytes = excluded.uploaded_bytes,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := tx.ExecContext(ctx, query, ids[0], ids[1], string(rec.State), rec.Comment, rec.UploadedBytes); err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert tx: %w", err)
	}

	return confirmed == 0, nil
}

// GetForTorrent returns all site records for a torrent keyed by site name.
func (s *SeedRecordStore) GetForTorrent(ctx context.Context, torrentName string) (map[string]*SiteRecord, error) {
	if torrentName == "" {
		return nil, errors.New("torrent name cannot be empty")
	}

	query := `
		SELECT tn.value, sn.value, ts.state, ts.comment, ts.uploaded_bytes, ts.updated_at
		FROM torrent_sites ts
		JOIN string_pool tn ON tn.id = ts.torrent_name_id
		JOIN string_pool sn ON sn.id = ts.site_name_id
		WHERE tn.value = ?
	`

	rows, err := s.db.QueryContext(ctx, query, torrentName)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*SiteRecord)
	for rows.Next() {
		var rec SiteRecord
		var state string
		if err := rows.Scan(&rec.TorrentName, &rec.SiteName, &state, &rec.Comment, &rec.UploadedBytes, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.State = RecordState(state)
		records[rec.SiteName] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// CountForSite returns how many records reference a site.
func (s *SeedRecordStore) CountForSite(ctx context.Context, siteName string) (int, error) {
	query := `
		SELECT COUNT(1)
		FROM torrent_sites ts
		JOIN string_pool sn ON sn.id = ts.site_name_id
		WHERE sn.value = ?
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, siteName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// PruneOlderThan removes records not refreshed since the cutoff.
func (s *SeedRecordStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM torrent_sites WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune records rows affected: %w", err)
	}
	return rows, nil
}
