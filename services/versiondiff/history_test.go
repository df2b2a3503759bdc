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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(t *testing.T) [][]byte {
	t.Helper()
	alice := session(t, 1, "alice")
	write(t, alice, addParagraph(alice, "one"))
	v1 := alice.EncodeStateAsUpdate()

	bob := session(t, 2, "bob", v1)
	write(t, bob, addParagraph(bob, "two"))
	v2 := bob.EncodeStateAsUpdate()

	carol := session(t, 3, "carol", v2)
	write(t, carol, deleteParagraph(carol, 0))
	v3 := carol.EncodeStateAsUpdate()

	return [][]byte{v1, v2, v3}
}

func TestDiffHistory(t *testing.T) {
	versions := history(t)
	want := [][]string{{"alice"}, {"bob"}, {"carol"}}

	for _, limit := range []int{1, 2, 8} {
		cfg := DefaultConfig()
		cfg.HistoryConcurrency = limit
		d, replicas, _ := newTestDiffer(t, cfg)

		arts, err := d.DiffHistory(context.Background(), "document", versions)
		require.NoError(t, err)
		require.Len(t, arts, len(versions))
		for i, art := range arts {
			assert.Equal(t, want[i], art.Editors, "limit %d version %d", limit, i)
		}
		assert.True(t, decodeSnapshot(t, arts[0].OldSnapshot).IsEmpty())
		assert.Equal(t, arts[0].NewSnapshot, arts[1].OldSnapshot)
		replicas.assertAllDestroyedOnce(t, len(versions))
	}
}

func TestDiffHistory_Empty(t *testing.T) {
	d, _, _ := newTestDiffer(t, DefaultConfig())
	arts, err := d.DiffHistory(context.Background(), "document", nil)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestDiffHistory_Failure(t *testing.T) {
	versions := history(t)
	versions[1] = []byte{0x01, 0x05}

	cfg := DefaultConfig()
	cfg.HistoryConcurrency = 1
	d, _, _ := newTestDiffer(t, cfg)
	_, err := d.DiffHistory(context.Background(), "document", versions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptPayload)
	assert.Contains(t, err.Error(), "version 1")
}

func TestDiffHistory_Cancelled(t *testing.T) {
	d, _, _ := newTestDiffer(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.DiffHistory(ctx, "document", history(t))
	assert.ErrorIs(t, err, context.Canceled)
}
