// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seedbridge/seedbridge/internal/models"
)

var (
	// ErrAlreadyExists is returned by a SitePublisher when the torrent
	// is already present on the target. Recorded as skipped, not failed.
	ErrAlreadyExists = errors.New("torrent already exists on target")

	// ErrNoTargets marks a publish request with no resolvable targets.
	ErrNoTargets = errors.New("no target sites")
)

// SitePublisher performs the tracker-specific upload for one target.
// The mechanics of talking to each tracker live behind this interface.
type SitePublisher interface {
	PublishToSite(ctx context.Context, job Job) error
}

// Request describes one multi-site publish call.
type Request struct {
	Torrent     models.TorrentGroup
	SourceSite  string
	TorrentID   string
	TargetSites []string
	Decision    Decision
}

// Job is the per-target unit of work.
type Job struct {
	TargetSite string
	SourceSite string
	TorrentID  string
	Torrent    models.TorrentGroup
}

// Failure records one target's publish error.
type Failure struct {
	Site   string `json:"site"`
	Reason string `json:"reason"`
}

// AggregateResult is the best-effort outcome across all targets.
type AggregateResult struct {
	Succeeded []string  `json:"succeeded"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
}

// Orchestrator fans one publish request out to all targets under a
// bounded worker pool.
type Orchestrator struct {
	publisher SitePublisher
}

func NewOrchestrator(publisher SitePublisher) *Orchestrator {
	return &Orchestrator{publisher: publisher}
}

type jobOutcome struct {
	site string
	err  error
}

// Publish runs one job per target site under the decision's effective
// concurrency, waits for every job, and aggregates. A single target's
// failure never cancels its siblings.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (*AggregateResult, error) {
	if len(req.TargetSites) == 0 {
		return nil, ErrNoTargets
	}

	workers := req.Decision.Effective
	if workers < 1 {
		workers = 1
	}
	if workers > len(req.TargetSites) {
		workers = len(req.TargetSites)
	}

	log.Info().
		Str("torrent", req.Torrent.Name).
		Str("source", req.SourceSite).
		Int("targets", len(req.TargetSites)).
		Int("workers", workers).
		Msg("Publishing to target sites")

	sem := make(chan struct{}, workers)
	outcomes := make(chan jobOutcome, len(req.TargetSites))

	var wg sync.WaitGroup
	for _, target := range req.TargetSites {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			job := Job{
				TargetSite: target,
				SourceSite: req.SourceSite,
				TorrentID:  req.TorrentID,
				Torrent:    req.Torrent,
			}

			outcomes <- jobOutcome{site: target, err: o.publisher.PublishToSite(ctx, job)}
		}(target)
	}

	wg.Wait()
	close(outcomes)

	result := &AggregateResult{
		Succeeded: []string{},
		Skipped:   []string{},
		Failed:    []Failure{},
	}

	for outcome := range outcomes {
		switch {
		case outcome.err == nil:
			result.Succeeded = append(result.Succeeded, outcome.site)
		case errors.Is(outcome.err, ErrAlreadyExists):
			result.Skipped = append(result.Skipped, outcome.site)
		default:
			log.Warn().Err(outcome.err).
				Str("torrent", req.Torrent.Name).
				Str("site", outcome.site).
				Msg("Publish to site failed")
			result.Failed = append(result.Failed, Failure{
				Site:   outcome.site,
				Reason: outcome.err.Error(),
			})
		}
	}

	// Completion order is unspecified; sort for stable output
	sort.Strings(result.Succeeded)
	sort.Strings(result.Skipped)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Site < result.Failed[j].Site })

	log.Info().
		Str("torrent", req.Torrent.Name).
		Int("succeeded", len(result.Succeeded)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("Publish finished")

	return result, nil
}

// PublishError wraps a per-target failure with its site for callers
// that need structured errors instead of the aggregate.
type PublishError struct {
	Site string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Site, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
