// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

var (
	tracer = otel.Tracer("versiondiff.attribution")
	meter  = otel.Meter("versiondiff.attribution")
)

// OutcomesMetric is the name of the counter of attribution outcomes.
const OutcomesMetric = telemetry.AttributionOutcomesMetric

// Directory resolves clients and deletions to users.
// *identity.Directory implements it.
type Directory interface {
	CreatorOf(client uint64) (string, bool)
	DeleterOf(id ydoc.ID) (string, bool)
	Users() []string
}

// Outcome tags how a Result was obtained.
type Outcome int

const (
	// OutcomePrecise means every transition was attributed individually.
	OutcomePrecise Outcome = iota
	// OutcomeDegraded means the traversal failed and Editors holds every
	// user known to the directory.
	OutcomeDegraded
)

// String returns "precise" or "degraded".
func (o Outcome) String() string {
	if o == OutcomeDegraded {
		return "degraded"
	}
	return "precise"
}

// Result is the outcome of one attribution.
type Result struct {
	// Editors is sorted and free of duplicates.
	Editors []string
	Outcome Outcome
	// Cause is the traversal failure of a degraded result.
	Cause error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithOutcomeCounter sets the counter incremented once per attribution
// with an "outcome" attribute.
func WithOutcomeCounter(counter metric.Int64Counter) Option {
	return func(e *Engine) { e.outcomes = counter }
}

// Engine attributes visibility changes to users.
//
// Thread Safety: safe for concurrent use as long as each call gets its
// own Log.
type Engine struct {
	logger   *slog.Logger
	outcomes metric.Int64Counter
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	if e.outcomes == nil {
		counter, err := meter.Int64Counter(OutcomesMetric,
			metric.WithDescription("Attribution results by outcome"),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", OutcomesMetric, err)
		}
		e.outcomes = counter
	}
	return e, nil
}

// Attribute returns the users whose operations changed visibility between
// from and to, restricted to operations under allowed roots.
//
// Description:
//
//	An operation that appeared is attributed to the user of its client; one
//	that disappeared to the user whose session deleted it, which may differ
//	from its creator. Unknown clients contribute nothing.
//
//	If the traversal meets a log it cannot interpret (ErrStructuralViolation
//	or a panic) the result is degraded to dir.Users() instead of failing.
//	Degraded results are logged at WARN and counted.
//
// Inputs:
//
//	ctx - Used for tracing and logging only.
//	log - The replica holding every operation of both snapshots.
//	dir - The identity directory read from the same replica.
//	from, to - The earlier and the later snapshot.
//	allowed - Content roots that count toward attribution.
//
// Outputs:
//
//	Result - Never fails; see Outcome.
func (e *Engine) Attribute(ctx context.Context, log Log, dir Directory, from, to ydoc.Snapshot, allowed RootSet) Result {
	ctx, span := tracer.Start(ctx, "attribution.Engine.Attribute")
	defer span.End()

	editors, scanned, err := e.attribute(log, dir, from, to, allowed)
	res := Result{Editors: editors, Outcome: OutcomePrecise}
	if err != nil {
		res = Result{Editors: sortedUnique(dir.Users()), Outcome: OutcomeDegraded, Cause: err}
		telemetry.RecordError(span, err)
		logging.WithTrace(ctx, e.logger).Warn("attribution degraded",
			slog.String("outcome", res.Outcome.String()),
			slog.Int("scanned", scanned),
			slog.Int("editors", len(res.Editors)),
			slog.String("error", err.Error()),
		)
	}

	span.SetAttributes(
		attribute.String("attribution.outcome", res.Outcome.String()),
		attribute.Int("attribution.scanned", scanned),
		attribute.Int("attribution.editors", len(res.Editors)),
	)
	e.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))
	return res
}

// attribute is the precise traversal. A panic is turned into a structural
// violation so that Attribute can degrade.
func (e *Engine) attribute(log Log, dir Directory, from, to ydoc.Snapshot, allowed RootSet) (editors []string, scanned int, err error) {
	defer func() {
		if r := recover(); r != nil {
			editors = nil
			err = fmt.Errorf("%w: panic during traversal: %v", ErrStructuralViolation, r)
		}
	}()

	set := make(map[string]struct{})
	for _, client := range log.Clients() {
		for _, item := range log.Structs(client) {
			if item == nil {
				return nil, scanned, fmt.Errorf("%w: nil struct in log of client %d", ErrStructuralViolation, client)
			}
			if item.GC {
				continue
			}
			scanned++

			root, ok, err := RootOf(log, item)
			if err != nil {
				return nil, scanned, err
			}
			if !ok || !allowed.Contains(root) {
				continue
			}

			was, now := IsVisible(item, from), IsVisible(item, to)
			var (
				user  string
				found bool
			)
			switch {
			case !was && now:
				user, found = dir.CreatorOf(item.ID.Client)
			case was && !now:
				user, found = dir.DeleterOf(item.ID)
			}
			if found {
				set[user] = struct{}{}
			}
		}
	}

	editors = make([]string, 0, len(set))
	for user := range set {
		editors = append(editors, user)
	}
	slices.Sort(editors)
	return editors, scanned, nil
}

func sortedUnique(users []string) []string {
	out := slices.Clone(users)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
