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
)

// StateVector maps each client to the first clock not yet observed from it.
type StateVector map[uint64]uint64

// Get returns the next unseen clock of client (0 if unknown).
func (sv StateVector) Get(client uint64) uint64 {
	return sv[client]
}

// Has reports whether id is covered by the state vector.
func (sv StateVector) Has(id ID) bool {
	return sv[id.Client] > id.Clock
}

// Clients returns the clients in ascending order.
func (sv StateVector) Clients() []uint64 {
	return slices.Sorted(maps.Keys(sv))
}

// Clone returns a copy.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	maps.Copy(out, sv)
	return out
}

// Equal compares two state vectors, treating zero entries as absent.
func (sv StateVector) Equal(other StateVector) bool {
	for client, clock := range sv {
		if other[client] != clock {
			return false
		}
	}
	for client, clock := range other {
		if sv[client] != clock {
			return false
		}
	}
	return true
}

// Encode serializes the state vector with clients in ascending order.
func (sv StateVector) Encode() []byte {
	var e encoder
	e.stateVector(sv)
	return e.buf
}

// DecodeStateVector parses bytes produced by StateVector.Encode.
func DecodeStateVector(b []byte) (StateVector, error) {
	d := newDecoder(b)
	sv := d.stateVector()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return sv, nil
}
