// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

func TestRegister_Idempotent(t *testing.T) {
	doc := ydoc.NewDoc(ydoc.WithClientID(7))
	for range 2 {
		_, err := doc.Transact(func(tx *ydoc.Transaction) error {
			return Register(tx, DefaultRoot, "u1", 7)
		})
		require.NoError(t, err)
	}

	dir := Load(doc, DefaultRoot)
	assert.Equal(t, []string{"u1"}, dir.Users())
	assert.Equal(t, 1, dir.Clients())
	user, ok := dir.CreatorOf(7)
	assert.True(t, ok)
	assert.Equal(t, "u1", user)
}

func TestRegister_EmptyUser(t *testing.T) {
	doc := ydoc.NewDoc()
	_, err := doc.Transact(func(tx *ydoc.Transaction) error {
		return Register(tx, DefaultRoot, "", 1)
	})
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestTrack_CreatorAndDeleterDiffer(t *testing.T) {
	alice := ydoc.NewDoc(ydoc.WithClientID(1))
	_, err := Track(alice, DefaultRoot, "alice")
	require.NoError(t, err)
	_, err = alice.Transact(func(tx *ydoc.Transaction) error {
		return alice.Text("body").InsertText(tx, 0, "hey", nil)
	})
	require.NoError(t, err)

	bob := ydoc.NewDoc(ydoc.WithClientID(2))
	require.NoError(t, bob.ApplyUpdate(alice.EncodeStateAsUpdate()))
	_, err = Track(bob, DefaultRoot, "bob")
	require.NoError(t, err)
	_, err = bob.Transact(func(tx *ydoc.Transaction) error {
		return bob.Text("body").Delete(tx, 0, 1)
	})
	require.NoError(t, err)

	replica, err := ydoc.Build([][]byte{bob.EncodeStateAsUpdate()}, ydoc.WithGC(false))
	require.NoError(t, err)
	defer replica.Destroy()

	dir := Load(replica, DefaultRoot)
	assert.Equal(t, []string{"alice", "bob"}, dir.Users())

	// bob collects the deleted "h", so its ID comes from alice's copy.
	h := bodyStart(t, alice)
	creator, ok := dir.CreatorOf(h.Client)
	require.True(t, ok)
	assert.Equal(t, "alice", creator)
	deleter, ok := dir.DeleterOf(h)
	require.True(t, ok)
	assert.Equal(t, "bob", deleter)

	_, ok = dir.DeleterOf(ydoc.ID{Client: h.Client, Clock: h.Clock + 1})
	assert.False(t, ok)
}

func bodyStart(t *testing.T, doc *ydoc.Doc) ydoc.ID {
	t.Helper()
	for _, client := range doc.Clients() {
		for _, it := range doc.Structs(client) {
			if it.ParentRoot == "body" && it.Content.Text != "" {
				return it.ID
			}
		}
	}
	t.Fatal("no text under body")
	return ydoc.ID{}
}

func TestTrack_MalformedEntryLogsWarning(t *testing.T) {
	doc := ydoc.NewDoc(ydoc.WithClientID(5))
	_, err := doc.Transact(func(tx *ydoc.Transaction) error {
		entry, err := doc.Map(DefaultRoot).SetType(tx, "dana", ydoc.TypeMap)
		if err != nil {
			return err
		}
		_, err = entry.SetType(tx, keyIDs, ydoc.TypeArray)
		return err
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	_, err = Track(doc, DefaultRoot, "dana", WithLogger(logger))
	require.NoError(t, err)

	_, err = doc.Transact(func(tx *ydoc.Transaction) error {
		return doc.Array("a").Push(tx, "x")
	})
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = doc.Transact(func(tx *ydoc.Transaction) error {
		return doc.Array("a").Delete(tx, 0, 1)
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "deletions not recorded")
	assert.Contains(t, out, `"user":"dana"`)
	assert.Contains(t, out, "malformed user entry")
}

func TestRecordDeletions_MalformedEntry(t *testing.T) {
	doc := ydoc.NewDoc(ydoc.WithClientID(6))
	_, err := doc.Transact(func(tx *ydoc.Transaction) error {
		if _, err := doc.Map(DefaultRoot).SetType(tx, "erin", ydoc.TypeMap); err != nil {
			return err
		}
		ds := ydoc.NewDeleteSet()
		ds.Add(6, 0, 1)
		return RecordDeletions(tx, DefaultRoot, "erin", ds)
	})
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestTrack_NoDeletionsNoRecord(t *testing.T) {
	doc := ydoc.NewDoc(ydoc.WithClientID(3))
	_, err := Track(doc, DefaultRoot, "carol")
	require.NoError(t, err)
	_, err = doc.Transact(func(tx *ydoc.Transaction) error {
		return doc.Array("a").Push(tx, "x")
	})
	require.NoError(t, err)

	users, _ := doc.Root(DefaultRoot)
	v, _ := users.Get("carol")
	ds, _ := v.(*ydoc.Type).Get(keyDS)
	assert.Equal(t, 0, ds.(*ydoc.Type).Len())
}

func TestLoad_MissingRoot(t *testing.T) {
	dir := Load(ydoc.NewDoc(), DefaultRoot)
	assert.Empty(t, dir.Users())
	_, ok := dir.CreatorOf(1)
	assert.False(t, ok)
	_, ok = dir.DeleterOf(ydoc.ID{Client: 1})
	assert.False(t, ok)
}

func TestLoad_SkipsMalformedEntries(t *testing.T) {
	doc := ydoc.NewDoc(ydoc.WithClientID(9))
	_, err := doc.Transact(func(tx *ydoc.Transaction) error {
		users := doc.Map(DefaultRoot)
		if err := users.Set(tx, "broken", "not a map"); err != nil {
			return err
		}
		entry, err := users.SetType(tx, "partial", ydoc.TypeMap)
		if err != nil {
			return err
		}
		ids, err := entry.SetType(tx, keyIDs, ydoc.TypeArray)
		if err != nil {
			return err
		}
		if err := ids.Push(tx, "nine", -1, 9); err != nil {
			return err
		}
		dss, err := entry.SetType(tx, keyDS, ydoc.TypeArray)
		if err != nil {
			return err
		}
		return dss.PushBinary(tx, []byte{0xff})
	})
	require.NoError(t, err)

	dir := Load(doc, DefaultRoot)
	assert.Equal(t, []string{"partial"}, dir.Users())
	user, ok := dir.CreatorOf(9)
	assert.True(t, ok)
	assert.Equal(t, "partial", user)
	assert.Equal(t, 1, dir.Clients())
}

func TestLoad_ClientClaimedTwice(t *testing.T) {
	doc := ydoc.NewDoc()
	_, err := doc.Transact(func(tx *ydoc.Transaction) error {
		if err := Register(tx, DefaultRoot, "zed", 4); err != nil {
			return err
		}
		return Register(tx, DefaultRoot, "amy", 4)
	})
	require.NoError(t, err)

	user, ok := Load(doc, DefaultRoot).CreatorOf(4)
	assert.True(t, ok)
	assert.Equal(t, "amy", user)
}

func TestParseClient(t *testing.T) {
	tests := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{uint64(5), 5, true},
		{float64(6), 6, true},
		{float64(6.5), 0, false},
		{float64(-1), 0, false},
		{7, 7, true},
		{-7, 0, false},
		{"8", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseClient(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
