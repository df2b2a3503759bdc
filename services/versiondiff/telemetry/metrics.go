// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metric names shared with components that create their own instruments.
const (
	DiffsTotalMetric          = "versiondiff_diffs_total"
	DiffDurationMetric        = "versiondiff_diff_duration_seconds"
	AttributionOutcomesMetric = "versiondiff_attribution_outcomes_total"
	ContributorQueriesMetric  = "versiondiff_contributor_queries_total"
)

// Metrics contains the versiondiff instruments.
//
// Description:
//
//	Counters and histograms for version diff computation. All names use
//	the "versiondiff_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// DiffsTotal counts diff computations by document type and status.
	DiffsTotal metric.Int64Counter

	// DiffDuration records diff computation duration in seconds.
	DiffDuration metric.Float64Histogram

	// AttributionOutcomes counts attribution results by outcome.
	AttributionOutcomes metric.Int64Counter

	// ContributorQueries counts contributor listings by status.
	ContributorQueries metric.Int64Counter
}

// NewMetrics creates all instruments on the given meter.
//
// Inputs:
//
//	meter - The meter to create instruments on.
//
// Outputs:
//
//	*Metrics - The instruments.
//	error - Non-nil if any instrument could not be created.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.DiffsTotal, err = meter.Int64Counter(
		DiffsTotalMetric,
		metric.WithDescription("Total version diff computations"),
		metric.WithUnit("{diff}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", DiffsTotalMetric, err)
	}

	m.DiffDuration, err = meter.Float64Histogram(
		DiffDurationMetric,
		metric.WithDescription("Version diff computation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", DiffDurationMetric, err)
	}

	m.AttributionOutcomes, err = meter.Int64Counter(
		AttributionOutcomesMetric,
		metric.WithDescription("Editor attribution results by outcome"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", AttributionOutcomesMetric, err)
	}

	m.ContributorQueries, err = meter.Int64Counter(
		ContributorQueriesMetric,
		metric.WithDescription("Total contributor listings"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", ContributorQueriesMetric, err)
	}

	return &m, nil
}
