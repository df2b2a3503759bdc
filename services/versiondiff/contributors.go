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
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff/identity"
	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
)

// ListContributors returns every user recorded in the identity directory
// of update, sorted. The replica is built with garbage collection off and
// destroyed before returning.
func (d *Differ) ListContributors(ctx context.Context, update []byte) (users []string, err error) {
	ctx, span := tracer.Start(ctx, "versiondiff.Differ.ListContributors")
	defer span.End()

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			telemetry.RecordError(span, err)
		}
		d.metrics.ContributorQueries.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}()

	replica := d.newReplica(false)
	defer replica.Destroy()

	if err := replica.ApplyUpdate(update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}
	users = identity.Load(replica, d.cfg.IdentityRoot).Users()
	if users == nil {
		users = []string{}
	}

	span.SetAttributes(attribute.Int("versiondiff.contributors", len(users)))
	logging.WithTrace(ctx, d.logger).Debug("contributors listed", slog.Int("count", len(users)))
	return users, nil
}
