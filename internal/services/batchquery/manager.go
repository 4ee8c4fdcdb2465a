// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package batchquery owns the async task lifecycle for bulk lookup
// queries: bounded fan-out over the lookup client, running totals, and
// pollable task snapshots.
package batchquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seedbridge/seedbridge/internal/metrics"
	"github.com/seedbridge/seedbridge/internal/models"
	"github.com/seedbridge/seedbridge/internal/services/iyuu"
)

// Hard ceiling on groups per batch regardless of what the caller asks for.
const MaxGroupsCeiling = 200

const (
	defaultWorkers   = 5
	defaultRetention = time.Hour
	janitorInterval  = time.Minute
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidInput = errors.New("invalid batch input")
)

// Status is the task lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stats aggregates discovery outcomes across a batch.
type Stats struct {
	TotalFound     int `json:"totalFound"`
	NewRecords     int `json:"newRecords"`
	UpdatedRecords int `json:"updatedRecords"`
}

// Snapshot is the caller-visible view of a task. Always a copy; callers
// can never mutate manager state through it.
type Snapshot struct {
	TaskID     string     `json:"taskId"`
	Status     Status     `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Stats      Stats      `json:"stats"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Lookuper resolves matches for a single torrent group.
type Lookuper interface {
	Lookup(ctx context.Context, group models.TorrentGroup) ([]iyuu.Match, error)
}

// RecordStore persists per-site presence records discovered by lookups.
type RecordStore interface {
	Upsert(ctx context.Context, rec *models.SiteRecord) (created bool, err error)
	GetForTorrent(ctx context.Context, torrentName string) (map[string]*models.SiteRecord, error)
}

type task struct {
	mu sync.Mutex

	id         string
	status     Status
	total      int
	processed  int
	stats      Stats
	message    string
	createdAt  time.Time
	finishedAt *time.Time
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		TaskID:    t.id,
		Status:    t.status,
		Total:     t.total,
		Processed: t.processed,
		Stats:     t.stats,
		Message:   t.message,
		CreatedAt: t.createdAt,
	}
	if t.finishedAt != nil {
		finished := *t.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

func (t *task) itemDone(found, created, updated int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.processed < t.total {
		t.processed++
	}
	t.stats.TotalFound += found
	t.stats.NewRecords += created
	t.stats.UpdatedRecords += updated
}

// finish sets the terminal state. The first transition wins; later
// calls are ignored.
func (t *task) finish(status Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusRunning {
		return
	}

	t.status = status
	t.message = message
	now := time.Now().UTC()
	t.finishedAt = &now
}

// Options tunes the manager; zero values fall back to defaults.
type Options struct {
	Workers   int
	MaxGroups int
	Retention time.Duration
	Metrics   *metrics.Manager
}

// Manager runs batch lookups and owns the task registry. Tasks live in
// memory only and are reaped after the retention window.
type Manager struct {
	lookup    Lookuper
	records   RecordStore
	workers   int
	maxGroups int
	retention time.Duration
	metrics   *metrics.Manager

	mu    sync.RWMutex
	tasks map[string]*task
}

// NewManager wires the batch lookup manager.
func NewManager(lookup Lookuper, records RecordStore, opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	maxGroups := opts.MaxGroups
	if maxGroups <= 0 || maxGroups > MaxGroupsCeiling {
		maxGroups = MaxGroupsCeiling
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	return &Manager{
		lookup:    lookup,
		records:   records,
		workers:   workers,
		maxGroups: maxGroups,
		retention: retention,
		metrics:   opts.Metrics,
		tasks:     make(map[string]*task),
	}
}

// Submit registers a batch and starts executing it in the background.
// Returns the task id immediately; progress is observed through GetTask.
func (m *Manager) Submit(items []models.TorrentGroup, maxGroups int, forceQuery bool) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no torrent groups", ErrInvalidInput)
	}

	limit := m.maxGroups
	if maxGroups > 0 && maxGroups < limit {
		limit = maxGroups
	}

	originalCount := len(items)
	var message string
	if originalCount > limit {
		items = items[:limit]
		message = fmt.Sprintf("batch truncated to %d of %d submitted groups", limit, originalCount)
	}

	t := &task{
		id:        uuid.New().String(),
		status:    StatusRunning,
		total:     len(items),
		message:   message,
		createdAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	// Not tied to the submitting request's context; the batch keeps
	// running after the caller disconnects.
	go m.run(context.Background(), t, items, forceQuery)

	if m.metrics != nil {
		m.metrics.BatchTasksSubmitted.Inc()
	}

	log.Info().
		Str("taskID", t.id).
		Int("groups", len(items)).
		Int("submitted", originalCount).
		Bool("force", forceQuery).
		Msg("Batch lookup submitted")

	return t.id, nil
}

// GetTask returns the latest snapshot for a task. Never blocks on the
// running batch; polling is idempotent.
func (m *Manager) GetTask(taskID string) (Snapshot, error) {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()

	if !ok {
		return Snapshot{}, ErrTaskNotFound
	}

	return t.snapshot(), nil
}

func (m *Manager) run(ctx context.Context, t *task, items []models.TorrentGroup, forceQuery bool) {
	var (
		failMu       sync.Mutex
		lookupFailed int
		invalidItems int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			found, created, updated, err := m.processItem(ctx, item, forceQuery)
			outcome := "ok"
			if err != nil {
				var lookupErr *iyuu.LookupError
				switch {
				case errors.As(err, &lookupErr):
					failMu.Lock()
					lookupFailed++
					failMu.Unlock()
					outcome = "lookup_error"
					log.Warn().Err(err).Str("torrent", item.Name).Msg("Batch item lookup failed")
				case errors.Is(err, iyuu.ErrInvalidInput):
					failMu.Lock()
					invalidItems++
					failMu.Unlock()
					outcome = "invalid"
					log.Warn().Err(err).Str("torrent", item.Name).Msg("Batch item rejected")
				default:
					failMu.Lock()
					lookupFailed++
					failMu.Unlock()
					outcome = "error"
					log.Error().Err(err).Str("torrent", item.Name).Msg("Batch item processing failed")
				}
			}
			if m.metrics != nil {
				m.metrics.BatchItemsProcessed.WithLabelValues(outcome).Inc()
			}

			// One item's failure never aborts the batch
			t.itemDone(found, created, updated)
			return nil
		})
	}

	g.Wait()

	snap := t.snapshot()
	failed := lookupFailed + invalidItems

	switch {
	case snap.Total > 0 && lookupFailed == snap.Total:
		t.finish(StatusFailed, "lookup service unreachable for every group")
	case failed > 0:
		t.finish(StatusSucceeded, appendMessage(snap.Message,
			fmt.Sprintf("%d of %d groups failed, %d matches found", failed, snap.Total, snap.Stats.TotalFound)))
	default:
		t.finish(StatusSucceeded, appendMessage(snap.Message,
			fmt.Sprintf("%d matches found across %d groups", snap.Stats.TotalFound, snap.Total)))
	}

	final := t.snapshot()
	log.Info().
		Str("taskID", final.TaskID).
		Str("status", string(final.Status)).
		Int("found", final.Stats.TotalFound).
		Int("new", final.Stats.NewRecords).
		Int("updated", final.Stats.UpdatedRecords).
		Msg("Batch lookup finished")
}

func (m *Manager) processItem(ctx context.Context, item models.TorrentGroup, forceQuery bool) (found, created, updated int, err error) {
	if !forceQuery {
		existing, err := m.records.GetForTorrent(ctx, item.Name)
		if err == nil && hasConfirmedRecord(existing) {
			// Already resolved earlier; skip the remote round trip
			return 0, 0, 0, nil
		}
	}

	matches, err := m.lookup.Lookup(ctx, item)
	if m.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.LookupRequests.WithLabelValues(result).Inc()
	}
	if err != nil {
		return 0, 0, 0, err
	}

	for _, match := range matches {
		state := models.RecordStateNotSeeding
		if match.Seeding {
			state = models.RecordStateSeeding
		}

		comment := match.Comment
		if comment == "" {
			comment = match.TorrentID
		}

		wasCreated, err := m.records.Upsert(ctx, &models.SiteRecord{
			TorrentName: item.Name,
			SiteName:    match.Site,
			State:       state,
			Comment:     comment,
		})
		if err != nil {
			log.Error().Err(err).
				Str("torrent", item.Name).
				Str("site", match.Site).
				Msg("Failed to store lookup match")
			continue
		}

		found++
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	return found, created, updated, nil
}

func hasConfirmedRecord(records map[string]*models.SiteRecord) bool {
	for _, rec := range records {
		if rec != nil && strings.TrimSpace(rec.Comment) != "" {
			return true
		}
	}
	return false
}

func appendMessage(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}

// Start launches the janitor that reaps finished tasks past retention.
// Blocks until ctx is cancelled; run it on its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reap(time.Now().UTC())
		}
	}
}

func (m *Manager) reap(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		snap := t.snapshot()
		if snap.Status == StatusRunning || snap.FinishedAt == nil {
			continue
		}
		if now.Sub(*snap.FinishedAt) >= m.retention {
			delete(m.tasks, id)
			log.Debug().Str("taskID", id).Msg("Reaped finished batch task")
		}
	}
}
