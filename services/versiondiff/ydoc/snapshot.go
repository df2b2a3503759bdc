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

import "fmt"

const snapshotVersion = 1

// Snapshot is an immutable causal instant: what had been observed and what
// had been deleted.
type Snapshot struct {
	sv StateVector
	ds *DeleteSet
}

// EmptySnapshot returns the snapshot before anything happened.
func EmptySnapshot() Snapshot {
	return Snapshot{sv: StateVector{}, ds: NewDeleteSet()}
}

// NewSnapshot builds a snapshot from copies of sv and ds.
func NewSnapshot(sv StateVector, ds *DeleteSet) Snapshot {
	if sv == nil {
		sv = StateVector{}
	}
	if ds == nil {
		ds = NewDeleteSet()
	}
	return Snapshot{sv: sv.Clone(), ds: ds.Clone()}
}

// StateVector returns a copy of the snapshot's state vector.
func (s Snapshot) StateVector() StateVector {
	if s.sv == nil {
		return StateVector{}
	}
	return s.sv.Clone()
}

// DeleteSet returns a copy of the snapshot's delete set.
func (s Snapshot) DeleteSet() *DeleteSet {
	if s.ds == nil {
		return NewDeleteSet()
	}
	return s.ds.Clone()
}

// Observed reports whether id had been observed at the snapshot.
func (s Snapshot) Observed(id ID) bool {
	return s.sv.Has(id)
}

// Deleted reports whether id had been deleted at the snapshot.
func (s Snapshot) Deleted(id ID) bool {
	return s.ds != nil && s.ds.Contains(id)
}

// IsEmpty reports whether the snapshot equals EmptySnapshot().
func (s Snapshot) IsEmpty() bool {
	return s.Equal(EmptySnapshot())
}

// Equal reports whether both snapshots describe the same instant.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.StateVector().Equal(other.StateVector()) && s.DeleteSet().Equal(other.DeleteSet())
}

// EncodeSnapshot serializes a snapshot: version byte, delete set, state vector.
func EncodeSnapshot(s Snapshot) []byte {
	e := encoder{buf: []byte{snapshotVersion}}
	e.deleteSet(s.DeleteSet())
	e.stateVector(s.StateVector())
	return e.buf
}

// DecodeSnapshot parses bytes produced by EncodeSnapshot.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	d := newDecoder(b)
	if v := d.byte(); d.err == nil && v != snapshotVersion {
		return Snapshot{}, fmt.Errorf("snapshot version %d: %w", v, ErrMalformedUpdate)
	}
	ds := d.deleteSet()
	sv := d.stateVector()
	if err := d.finish(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{sv: sv, ds: ds}, nil
}
