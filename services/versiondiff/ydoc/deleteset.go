// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ydoc

import (
	"maps"
	"slices"
	"sort"
)

// Range is a half-open clock interval [Clock, Clock+Len).
type Range struct {
	Clock uint64
	Len   uint64
}

// End returns the first clock after the range.
func (r Range) End() uint64 {
	return r.Clock + r.Len
}

// DeleteSet records deleted operations as sorted, non-overlapping,
// non-adjacent ranges per client.
//
// Thread Safety: NOT safe for concurrent mutation. A DeleteSet held by a
// Snapshot is never mutated.
type DeleteSet struct {
	clients map[uint64][]Range
}

// NewDeleteSet returns an empty delete set.
func NewDeleteSet() *DeleteSet {
	return &DeleteSet{clients: make(map[uint64][]Range)}
}

// Add marks [clock, clock+length) of client as deleted, merging with
// overlapping or adjacent ranges.
func (ds *DeleteSet) Add(client, clock, length uint64) {
	if length == 0 {
		return
	}
	ranges := ds.clients[client]
	end := clock + length

	// first range that overlaps or touches the new one
	i := sort.Search(len(ranges), func(k int) bool { return ranges[k].End() >= clock })
	// first range entirely after it
	j := sort.Search(len(ranges), func(k int) bool { return ranges[k].Clock > end })

	merged := Range{Clock: clock, Len: length}
	if i < j {
		merged.Clock = min(clock, ranges[i].Clock)
		merged.Len = max(end, ranges[j-1].End()) - merged.Clock
	}
	ds.clients[client] = slices.Replace(ranges, i, j, merged)
}

// Contains reports whether id falls in a deleted range.
func (ds *DeleteSet) Contains(id ID) bool {
	ranges := ds.clients[id.Client]
	i := sort.Search(len(ranges), func(k int) bool { return ranges[k].End() > id.Clock })
	return i < len(ranges) && ranges[i].Clock <= id.Clock
}

// Clients returns the clients with deletions, ascending.
func (ds *DeleteSet) Clients() []uint64 {
	return slices.Sorted(maps.Keys(ds.clients))
}

// Ranges returns the deleted ranges of client. The slice must not be modified.
func (ds *DeleteSet) Ranges(client uint64) []Range {
	return ds.clients[client]
}

// IsEmpty reports whether nothing is deleted.
func (ds *DeleteSet) IsEmpty() bool {
	return len(ds.clients) == 0
}

// Merge adds every range of other.
func (ds *DeleteSet) Merge(other *DeleteSet) {
	for client, ranges := range other.clients {
		for _, r := range ranges {
			ds.Add(client, r.Clock, r.Len)
		}
	}
}

// Clone returns a deep copy.
func (ds *DeleteSet) Clone() *DeleteSet {
	out := &DeleteSet{clients: make(map[uint64][]Range, len(ds.clients))}
	for client, ranges := range ds.clients {
		out.clients[client] = slices.Clone(ranges)
	}
	return out
}

// Equal reports whether both sets delete the same ids.
func (ds *DeleteSet) Equal(other *DeleteSet) bool {
	return maps.EqualFunc(ds.clients, other.clients, slices.Equal[[]Range])
}

// Encode serializes the delete set.
func (ds *DeleteSet) Encode() []byte {
	var e encoder
	e.deleteSet(ds)
	return e.buf
}

// DecodeDeleteSet parses bytes produced by DeleteSet.Encode.
func DecodeDeleteSet(b []byte) (*DeleteSet, error) {
	d := newDecoder(b)
	ds := d.deleteSet()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return ds, nil
}
