// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package publish executes multi-site cross-seed publishes: it resolves
// the effective parallelism policy and runs per-target jobs under a
// bounded worker pool with partial-failure isolation.
package publish

import "runtime"

// MaxConcurrencyCeiling is the hard upper bound on publish parallelism.
const MaxConcurrencyCeiling = 200

// DefaultManualConcurrency is used when manual mode has no stored value.
const DefaultManualConcurrency = 5

// Mode selects how the effective concurrency is computed.
type Mode string

const (
	// ModeAuto scales with host capacity: cpu threads * 2.
	ModeAuto Mode = "auto"
	// ModeAll runs one worker per selected target site. Evaluated per
	// publish call since the target count varies per torrent.
	ModeAll Mode = "all"
	// ModeManual uses the configured value.
	ModeManual Mode = "manual"
)

// ParseMode maps a config string onto a Mode; unknown values fall back
// to auto.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAll:
		return ModeAll
	case ModeManual:
		return ModeManual
	default:
		return ModeAuto
	}
}

// Decision is the resolved concurrency for one publish call.
type Decision struct {
	Mode        Mode `json:"mode"`
	CPUThreads  int  `json:"cpuThreads"`
	Suggested   int  `json:"suggested"`
	Effective   int  `json:"effective"`
	ManualValue int  `json:"manualValue,omitempty"`
}

// Resolve computes the effective parallelism for a publish call.
// cpuThreads <= 0 falls back to the live host count; the result is
// always within [1, maxConcurrency].
func Resolve(mode Mode, manualValue, targetCount, cpuThreads, maxConcurrency int) Decision {
	if cpuThreads <= 0 {
		cpuThreads = runtime.NumCPU()
	}
	if maxConcurrency <= 0 || maxConcurrency > MaxConcurrencyCeiling {
		maxConcurrency = MaxConcurrencyCeiling
	}

	autoSuggested := cpuThreads * 2

	decision := Decision{
		Mode:       mode,
		CPUThreads: cpuThreads,
	}

	switch mode {
	case ModeAll:
		decision.Suggested = targetCount
	case ModeManual:
		decision.ManualValue = manualValue
		if manualValue >= 1 {
			decision.Suggested = manualValue
		} else {
			// Invalid manual value falls back to the auto suggestion
			decision.Suggested = autoSuggested
		}
	default:
		decision.Mode = ModeAuto
		decision.Suggested = autoSuggested
	}

	decision.Effective = clamp(decision.Suggested, 1, maxConcurrency)

	return decision
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
