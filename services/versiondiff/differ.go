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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff/attribution"
	"github.com/AleutianAI/trackchanges/services/versiondiff/codec"
	"github.com/AleutianAI/trackchanges/services/versiondiff/identity"
	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

var (
	tracer = otel.Tracer("versiondiff")
	meter  = otel.Meter("versiondiff")
)

// Artifact is the attributed diff between two versions. Binary fields are
// text encoded with the codec package.
type Artifact struct {
	// FullUpdate is the complete state of the replica after both versions,
	// holding every operation either version contains.
	FullUpdate string `json:"full_update"`

	// OldSnapshot is the snapshot of the previous version, or the empty
	// snapshot for a first version.
	OldSnapshot string `json:"old_snapshot"`

	// NewSnapshot is the snapshot of the current version.
	NewSnapshot string `json:"new_snapshot"`

	// Editors is sorted and free of duplicates.
	Editors []string `json:"editors"`

	// Attribution is "precise" or "degraded".
	Attribution string `json:"attribution"`
}

// Option configures a Differ.
type Option func(*Differ)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Differ) { d.logger = logger }
}

// WithMetrics sets the instruments. Default: telemetry.NewMetrics on the
// global meter provider.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Differ) { d.metrics = m }
}

// withReplicaObserver is called with every replica the Differ creates.
func withReplicaObserver(fn func(*ydoc.Doc)) Option {
	return func(d *Differ) { d.onReplica = fn }
}

// Differ computes attributed version diffs.
//
// Thread Safety: Safe for concurrent use.
type Differ struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	engine    *attribution.Engine
	onReplica func(*ydoc.Doc)
}

// New creates a Differ.
//
// Inputs:
//
//	cfg - Validated with Config.Validate.
//	opts - Optional logger and metrics.
//
// Outputs:
//
//	*Differ - Ready for use.
//	error - Wraps ErrInvalidConfig, or an instrument creation failure.
func New(cfg Config, opts ...Option) (*Differ, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Differ{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrDefault(d.logger)

	if d.metrics == nil {
		m, err := telemetry.NewMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		d.metrics = m
	}

	engine, err := attribution.NewEngine(
		attribution.WithLogger(d.logger),
		attribution.WithOutcomeCounter(d.metrics.AttributionOutcomes),
	)
	if err != nil {
		return nil, fmt.Errorf("create attribution engine: %w", err)
	}
	d.engine = engine
	return d, nil
}

// Config returns the configuration the Differ was created with.
func (d *Differ) Config() Config {
	return d.cfg
}

// ComputeVersionDiff diffs current against previous.
//
// Description:
//
//	Both versions are replayed into one private replica. With a previous
//	version, the replica is built from it, its snapshot is taken as the
//	old snapshot, and only the part of current the replica lacks is
//	applied. Without one, the replica is built from current and the old
//	snapshot is empty. Editors are the users whose operations under the
//	document type's roots changed visibility between the two snapshots.
//
//	The replica is destroyed before returning on every path.
//
// Inputs:
//
//	ctx - Used for tracing and logging.
//	docType - A configured document type; empty selects the default.
//	current - The newer version's update.
//	previous - The older version's update, or nil for a first version.
//
// Outputs:
//
//	*Artifact - The attributed diff.
//	error - ErrUnknownDocumentType or ErrCorruptPayload.
func (d *Differ) ComputeVersionDiff(ctx context.Context, docType string, current, previous []byte) (art *Artifact, err error) {
	if docType == "" {
		docType = d.cfg.DefaultDocumentType
	}
	first := len(previous) == 0

	ctx, span := tracer.Start(ctx, "versiondiff.Differ.ComputeVersionDiff",
		trace.WithAttributes(
			attribute.String("versiondiff.doc_type", docType),
			attribute.Bool("versiondiff.first_version", first),
			attribute.Int("versiondiff.current_bytes", len(current)),
			attribute.Int("versiondiff.previous_bytes", len(previous)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		d.recordDiff(ctx, docType, time.Since(start), err)
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	roots, ok := d.cfg.DocumentTypes[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}

	replica := d.newReplica(d.cfg.GC)
	defer replica.Destroy()

	old := ydoc.EmptySnapshot()
	if first {
		if err := replica.ApplyUpdate(current); err != nil {
			return nil, fmt.Errorf("%w: current version: %w", ErrCorruptPayload, err)
		}
	} else {
		if err := replica.ApplyUpdate(previous); err != nil {
			return nil, fmt.Errorf("%w: previous version: %w", ErrCorruptPayload, err)
		}
		old = replica.Snapshot()
		delta, err := ydoc.DiffUpdate(current, replica.StateVector())
		if err != nil {
			return nil, fmt.Errorf("%w: current version: %w", ErrCorruptPayload, err)
		}
		if err := replica.ApplyUpdate(delta); err != nil {
			return nil, fmt.Errorf("%w: current version: %w", ErrCorruptPayload, err)
		}
	}
	next := replica.Snapshot()

	logger := logging.WithTrace(ctx, d.logger)
	if replica.HasPending() {
		logger.Warn("version has operations with missing dependencies",
			slog.String("doc_type", docType),
		)
	}

	dir := identity.Load(replica, d.cfg.IdentityRoot)
	res := d.engine.Attribute(ctx, replica, dir, old, next, attribution.NewRootSet(roots...))

	art = &Artifact{
		FullUpdate:  codec.Encode(replica.EncodeStateAsUpdate()),
		OldSnapshot: codec.Encode(ydoc.EncodeSnapshot(old)),
		NewSnapshot: codec.Encode(ydoc.EncodeSnapshot(next)),
		Editors:     res.Editors,
		Attribution: res.Outcome.String(),
	}

	span.SetAttributes(
		attribute.Int("versiondiff.editors", len(art.Editors)),
		attribute.String("versiondiff.attribution", art.Attribution),
	)
	logger.Debug("version diff computed",
		slog.String("doc_type", docType),
		slog.Bool("first_version", first),
		slog.Int("editors", len(art.Editors)),
		slog.String("attribution", art.Attribution),
	)
	return art, nil
}

// ComputeVersionDiffEncoded is ComputeVersionDiff for text-encoded
// versions. An empty previous means a first version. Payloads that do not
// decode are counted as failed diffs.
func (d *Differ) ComputeVersionDiffEncoded(ctx context.Context, docType, current, previous string) (*Artifact, error) {
	if docType == "" {
		docType = d.cfg.DefaultDocumentType
	}
	ctx, span := tracer.Start(ctx, "versiondiff.Differ.ComputeVersionDiffEncoded",
		trace.WithAttributes(
			attribute.String("versiondiff.doc_type", docType),
			attribute.Int("versiondiff.current_chars", len(current)),
			attribute.Int("versiondiff.previous_chars", len(previous)),
		),
	)
	defer span.End()

	start := time.Now()
	fail := func(err error) (*Artifact, error) {
		d.recordDiff(ctx, docType, time.Since(start), err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	cur, err := codec.Decode(current)
	if err != nil {
		return fail(fmt.Errorf("decode current version: %w", err))
	}
	var prev []byte
	if previous != "" {
		prev, err = codec.Decode(previous)
		if err != nil {
			return fail(fmt.Errorf("decode previous version: %w", err))
		}
	}
	return d.ComputeVersionDiff(ctx, docType, cur, prev)
}

func (d *Differ) newReplica(gc bool) *ydoc.Doc {
	replica := ydoc.NewDoc(ydoc.WithGC(gc))
	if d.onReplica != nil {
		d.onReplica(replica)
	}
	return replica
}

func (d *Differ) recordDiff(ctx context.Context, docType string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("doc_type", docType),
		attribute.String("status", status),
	)
	d.metrics.DiffsTotal.Add(ctx, 1, attrs)
	d.metrics.DiffDuration.Record(ctx, elapsed.Seconds(), attrs)
}
