// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package batchquery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedbridge/seedbridge/internal/models"
	"github.com/seedbridge/seedbridge/internal/services/iyuu"
)

type fakeLookup struct {
	mu      sync.Mutex
	calls   int
	handler func(group models.TorrentGroup) ([]iyuu.Match, error)
}

func (f *fakeLookup) Lookup(_ context.Context, group models.TorrentGroup) ([]iyuu.Match, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.handler(group)
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memRecordStore struct {
	mu      sync.Mutex
	records map[string]map[string]*models.SiteRecord
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]map[string]*models.SiteRecord)}
}

func (s *memRecordStore) Upsert(_ context.Context, rec *models.SiteRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perSite, ok := s.records[rec.TorrentName]
	if !ok {
		perSite = make(map[string]*models.SiteRecord)
		s.records[rec.TorrentName] = perSite
	}

	_, existed := perSite[rec.SiteName]
	copied := *rec
	perSite[rec.SiteName] = &copied
	return !existed, nil
}

func (s *memRecordStore) GetForTorrent(_ context.Context, torrentName string) (map[string]*models.SiteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*models.SiteRecord)
	for site, rec := range s.records[torrentName] {
		copied := *rec
		out[site] = &copied
	}
	return out, nil
}

func groups(n int) []models.TorrentGroup {
	items := make([]models.TorrentGroup, n)
	for i := range items {
		items[i] = models.TorrentGroup{Name: fmt.Sprintf("torrent-%03d", i), Size: int64(i + 1)}
	}
	return items
}

func waitForTerminal(t *testing.T, m *Manager, taskID string) Snapshot {
	t.Helper()

	var snap Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = m.GetTask(taskID)
		require.NoError(t, err)
		return snap.Status != StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	return snap
}

func TestSubmitProcessesAllItems(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return []iyuu.Match{{Site: "alpha", TorrentID: "1", Comment: "https://alpha/t/1", Seeding: true}}, nil
	}}
	store := newMemRecordStore()
	m := NewManager(lookup, store, Options{Workers: 3})

	taskID, err := m.Submit(groups(10), 0, true)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 10, snap.Processed)
	assert.Equal(t, 10, snap.Stats.TotalFound)
	assert.Equal(t, 10, snap.Stats.NewRecords)
	assert.Zero(t, snap.Stats.UpdatedRecords)
	assert.NotNil(t, snap.FinishedAt)
}

func TestSubmitCountsUpdatedRecords(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return []iyuu.Match{{Site: "alpha", TorrentID: "1", Comment: "c"}}, nil
	}}
	store := newMemRecordStore()
	m := NewManager(lookup, store, Options{})

	// Pre-seed a record so the upsert updates instead of creates
	_, err := store.Upsert(context.Background(), &models.SiteRecord{
		TorrentName: "torrent-000", SiteName: "alpha", Comment: "old",
	})
	require.NoError(t, err)

	taskID, err := m.Submit(groups(1), 0, true)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, 1, snap.Stats.TotalFound)
	assert.Zero(t, snap.Stats.NewRecords)
	assert.Equal(t, 1, snap.Stats.UpdatedRecords)
}

func TestSubmitTruncatesToMaxGroups(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return nil, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{})

	taskID, err := m.Submit(groups(250), 200, true)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, 200, snap.Total)
	assert.Equal(t, 200, snap.Processed)
	assert.Contains(t, snap.Message, "250")
}

func TestSubmitHonoursCeilingOverLargerRequest(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return nil, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{})

	// Caller asking for more than the ceiling still gets clamped
	taskID, err := m.Submit(groups(250), 500, true)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)
	assert.Equal(t, MaxGroupsCeiling, snap.Total)
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	m := NewManager(&fakeLookup{}, newMemRecordStore(), Options{})

	_, err := m.Submit(nil, 0, false)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPerItemFailureDoesNotAbortBatch(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		if group.Name == "torrent-002" {
			return nil, &iyuu.LookupError{Group: group.Name, Err: errors.New("connection reset")}
		}
		return []iyuu.Match{{Site: "alpha", TorrentID: "1", Comment: "c"}}, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{Workers: 2})

	taskID, err := m.Submit(groups(5), 0, true)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 5, snap.Processed)
	assert.Equal(t, 4, snap.Stats.TotalFound)
	assert.Contains(t, snap.Message, "1 of 5 groups failed")
}

func TestAllItemsFailingMarksTaskFailed(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return nil, &iyuu.LookupError{Group: group.Name, Err: errors.New("no route to host")}
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{Workers: 2})

	taskID, err := m.Submit(groups(4), 0, true)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, 4, snap.Processed)
	assert.Contains(t, snap.Message, "unreachable")
}

func TestPollingIsIdempotent(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return nil, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{})

	taskID, err := m.Submit(groups(3), 0, true)
	require.NoError(t, err)

	waitForTerminal(t, m, taskID)

	first, err := m.GetTask(taskID)
	require.NoError(t, err)
	second, err := m.GetTask(taskID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGetTaskUnknownID(t *testing.T) {
	m := NewManager(&fakeLookup{}, newMemRecordStore(), Options{})

	_, err := m.GetTask("does-not-exist")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestForceQuerySkipsConfirmedRecords(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return []iyuu.Match{{Site: "alpha", TorrentID: "1", Comment: "c"}}, nil
	}}
	store := newMemRecordStore()
	m := NewManager(lookup, store, Options{})

	_, err := store.Upsert(context.Background(), &models.SiteRecord{
		TorrentName: "torrent-000", SiteName: "alpha", Comment: "https://alpha/t/1",
	})
	require.NoError(t, err)

	taskID, err := m.Submit(groups(1), 0, false)
	require.NoError(t, err)

	snap := waitForTerminal(t, m, taskID)

	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 1, snap.Processed)
	assert.Zero(t, lookup.callCount(), "cached record should skip the remote lookup")
}

func TestReapRemovesFinishedTasksPastRetention(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		return nil, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{Retention: time.Minute})

	taskID, err := m.Submit(groups(1), 0, true)
	require.NoError(t, err)
	waitForTerminal(t, m, taskID)

	// Not yet past retention
	m.reap(time.Now().UTC())
	_, err = m.GetTask(taskID)
	require.NoError(t, err)

	m.reap(time.Now().UTC().Add(2 * time.Minute))
	_, err = m.GetTask(taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestProcessedNeverExceedsTotal(t *testing.T) {
	lookup := &fakeLookup{handler: func(group models.TorrentGroup) ([]iyuu.Match, error) {
		time.Sleep(time.Millisecond)
		return nil, nil
	}}
	m := NewManager(lookup, newMemRecordStore(), Options{Workers: 8})

	taskID, err := m.Submit(groups(40), 0, true)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	var last int
	for time.Now().Before(deadline) {
		snap, err := m.GetTask(taskID)
		require.NoError(t, err)
		assert.LessOrEqual(t, snap.Processed, snap.Total)
		assert.GreaterOrEqual(t, snap.Processed, last, "processed must be monotone")
		last = snap.Processed
		if snap.Status != StatusRunning {
			assert.Equal(t, snap.Total, snap.Processed)
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
}
