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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/trackchanges/services/versiondiff/identity"
	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

var contentRoots = NewRootSet("default")

// session opens a tracked editing session for user on top of base.
func session(t *testing.T, client uint64, user string, base ...[]byte) *ydoc.Doc {
	t.Helper()
	doc := ydoc.NewDoc(ydoc.WithClientID(client), ydoc.WithGC(false))
	for _, b := range base {
		require.NoError(t, doc.ApplyUpdate(b))
	}
	if user != "" {
		_, err := identity.Track(doc, identity.DefaultRoot, user)
		require.NoError(t, err)
	}
	return doc
}

func write(t *testing.T, doc *ydoc.Doc, fn func(tx *ydoc.Transaction) error) {
	t.Helper()
	_, err := doc.Transact(fn)
	require.NoError(t, err)
}

func addParagraph(doc *ydoc.Doc, text string) func(tx *ydoc.Transaction) error {
	return func(tx *ydoc.Transaction) error {
		frag := doc.XmlFragment("default")
		p, err := frag.InsertElement(tx, frag.Len(), "paragraph")
		if err != nil {
			return err
		}
		x, err := p.InsertXmlText(tx, 0)
		if err != nil {
			return err
		}
		return x.InsertText(tx, 0, text, nil)
	}
}

// attributeVersions replays the diff assembly: previous first, then the
// part of current the previous replica lacks.
func attributeVersions(t *testing.T, e *Engine, current, previous []byte) (Result, *ydoc.Doc) {
	t.Helper()
	var deltas [][]byte
	if previous != nil {
		deltas = append(deltas, previous)
	}
	replica, err := ydoc.Build(deltas, ydoc.WithGC(false))
	require.NoError(t, err)
	t.Cleanup(replica.Destroy)

	old := ydoc.EmptySnapshot()
	if previous != nil {
		old = replica.Snapshot()
	}
	delta, err := ydoc.DiffUpdate(current, replica.StateVector())
	require.NoError(t, err)
	require.NoError(t, replica.ApplyUpdate(delta))

	dir := identity.Load(replica, identity.DefaultRoot)
	return e.Attribute(context.Background(), replica, dir, old, replica.Snapshot(), contentRoots), replica
}

func newTestEngine(t *testing.T) (*Engine, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	counter, err := provider.Meter("test").Int64Counter(OutcomesMetric)
	require.NoError(t, err)
	e, err := NewEngine(WithOutcomeCounter(counter))
	require.NoError(t, err)
	return e, reader
}

func outcomeCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != OutcomesMetric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestAttribute_FirstVersion(t *testing.T) {
	e, reader := newTestEngine(t)
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "hello"))
	bob := session(t, 2, "bob", alice.EncodeStateAsUpdate())
	write(t, bob, addParagraph(bob, "world"))

	res, _ := attributeVersions(t, e, bob.EncodeStateAsUpdate(), nil)
	assert.Equal(t, OutcomePrecise, res.Outcome)
	assert.NoError(t, res.Cause)
	assert.Equal(t, []string{"alice", "bob"}, res.Editors)
	assert.Equal(t, map[string]int64{"precise": 1}, outcomeCounts(t, reader))
}

func TestAttribute_SameVersionIsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "hello"))
	v := alice.EncodeStateAsUpdate()

	res, _ := attributeVersions(t, e, v, v)
	assert.Equal(t, OutcomePrecise, res.Outcome)
	assert.Empty(t, res.Editors)
}

func TestAttribute_DeleterNotCreator(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "first"))
	v1 := alice.EncodeStateAsUpdate()

	bob := session(t, 2, "bob", v1)
	write(t, bob, func(tx *ydoc.Transaction) error {
		return bob.XmlFragment("default").Delete(tx, 0, 1)
	})
	v2 := bob.EncodeStateAsUpdate()

	res, _ := attributeVersions(t, e, v2, v1)
	assert.Equal(t, []string{"bob"}, res.Editors)
}

func TestAttribute_ScopeExclusion(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "body"))
	v1 := alice.EncodeStateAsUpdate()

	carol := session(t, 3, "carol", v1)
	write(t, carol, func(tx *ydoc.Transaction) error {
		meta := carol.Map("meta")
		if err := meta.Set(tx, "status", "draft"); err != nil {
			return err
		}
		return meta.Set(tx, "status", "final")
	})
	v2 := carol.EncodeStateAsUpdate()

	res, _ := attributeVersions(t, e, v2, v1)
	assert.Equal(t, OutcomePrecise, res.Outcome)
	assert.Empty(t, res.Editors)
}

func TestAttribute_UnknownClientIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	anon := session(t, 9, "")
	write(t, anon, addParagraph(anon, "who"))
	alice := session(t, 1, "alice", anon.EncodeStateAsUpdate())
	write(t, alice, addParagraph(alice, "me"))

	res, _ := attributeVersions(t, e, alice.EncodeStateAsUpdate(), nil)
	assert.Equal(t, []string{"alice"}, res.Editors)
}

func TestAttribute_DegradesOnOrphan(t *testing.T) {
	e, reader := newTestEngine(t)
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "x"))
	bob := session(t, 2, "bob", alice.EncodeStateAsUpdate())
	v1 := bob.EncodeStateAsUpdate()

	var char *ydoc.Item
	for _, it := range alice.Structs(1) {
		if it.Content.Kind == ydoc.ContentString {
			char = it
		}
	}
	require.NotNil(t, char)
	orphan := &ydoc.Update{
		Structs: []*ydoc.Item{{
			ID:       ydoc.ID{Client: 50, Clock: 0},
			ParentID: &char.ID,
			Content:  ydoc.Content{Kind: ydoc.ContentString, Text: "o"},
		}},
		DeleteSet: ydoc.NewDeleteSet(),
	}
	v2, err := ydoc.MergeUpdates(v1, orphan.Encode())
	require.NoError(t, err)

	res, _ := attributeVersions(t, e, v2, v1)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.ErrorIs(t, res.Cause, ErrStructuralViolation)
	assert.Equal(t, []string{"alice", "bob"}, res.Editors)
	assert.Equal(t, map[string]int64{"degraded": 1}, outcomeCounts(t, reader))
}

type staticDirectory struct{ users []string }

func (d staticDirectory) CreatorOf(uint64) (string, bool)  { return "", false }
func (d staticDirectory) DeleterOf(ydoc.ID) (string, bool) { return "", false }
func (d staticDirectory) Users() []string                  { return d.users }

func TestAttribute_DegradesOnPanic(t *testing.T) {
	e, _ := newTestEngine(t)
	log := newFakeLog(containerItem(1, 0, nil, "default"))
	log.broken = true

	res := e.Attribute(context.Background(), log, staticDirectory{users: []string{"b", "a", "b"}},
		ydoc.EmptySnapshot(), ydoc.EmptySnapshot(), contentRoots)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.ErrorIs(t, res.Cause, ErrStructuralViolation)
	assert.Equal(t, []string{"a", "b"}, res.Editors)
}

func TestAttribute_OrderIndependent(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := session(t, 7, "alice")
	write(t, alice, addParagraph(alice, "a"))
	bob := session(t, 3, "bob")
	write(t, bob, addParagraph(bob, "b"))

	ab, err := ydoc.MergeUpdates(alice.EncodeStateAsUpdate(), bob.EncodeStateAsUpdate())
	require.NoError(t, err)
	ba, err := ydoc.MergeUpdates(bob.EncodeStateAsUpdate(), alice.EncodeStateAsUpdate())
	require.NoError(t, err)

	r1, _ := attributeVersions(t, e, ab, nil)
	r2, _ := attributeVersions(t, e, ba, nil)
	assert.Equal(t, r1.Editors, r2.Editors)
	assert.Equal(t, []string{"alice", "bob"}, r1.Editors)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "precise", OutcomePrecise.String())
	assert.Equal(t, "degraded", OutcomeDegraded.String())
}
