// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Manager owns the Prometheus registry and the service collectors.
type Manager struct {
	registry *prometheus.Registry

	BatchTasksSubmitted prometheus.Counter
	BatchItemsProcessed *prometheus.CounterVec
	LookupRequests      *prometheus.CounterVec
	PublishJobs         *prometheus.CounterVec
	PublishDuration     prometheus.Histogram
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		BatchTasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedbridge_batch_tasks_submitted_total",
			Help: "Number of batch lookup tasks submitted.",
		}),
		BatchItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedbridge_batch_items_processed_total",
			Help: "Batch lookup items processed, partitioned by outcome.",
		}, []string{"outcome"}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedbridge_lookup_requests_total",
			Help: "Lookup service calls, partitioned by result.",
		}, []string{"result"}),
		PublishJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedbridge_publish_jobs_total",
			Help: "Per-site publish jobs, partitioned by outcome.",
		}, []string{"outcome"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seedbridge_publish_duration_seconds",
			Help:    "Wall time of complete multi-site publish calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	registry.MustRegister(
		m.BatchTasksSubmitted,
		m.BatchItemsProcessed,
		m.LookupRequests,
		m.PublishJobs,
		m.PublishDuration,
	)

	return m
}

// Registry exposes the underlying registry for the metrics server.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
