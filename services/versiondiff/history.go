// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package versiondiff

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
)

// DiffHistory diffs every version against its predecessor.
//
// Description:
//
//	Artifact i is the diff of versions[i] against versions[i-1]; artifact 0
//	is the first-version diff of versions[0]. Diffs run concurrently, at
//	most Config.HistoryConcurrency at a time, and the results keep input
//	order. The first failure cancels the remaining diffs.
//
// Inputs:
//
//	ctx - Checked before each diff starts.
//	docType - As for ComputeVersionDiff.
//	versions - Updates, oldest first.
//
// Outputs:
//
//	[]*Artifact - One artifact per version.
//	error - The first failure, naming the version index.
func (d *Differ) DiffHistory(ctx context.Context, docType string, versions [][]byte) ([]*Artifact, error) {
	ctx, span := tracer.Start(ctx, "versiondiff.Differ.DiffHistory")
	defer span.End()
	span.SetAttributes(attribute.Int("versiondiff.versions", len(versions)))

	out := make([]*Artifact, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.HistoryConcurrency)

	for i := range versions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var previous []byte
			if i > 0 {
				previous = versions[i-1]
			}
			art, err := d.ComputeVersionDiff(gctx, docType, versions[i], previous)
			if err != nil {
				return fmt.Errorf("version %d: %w", i, err)
			}
			out[i] = art
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return out, nil
}
