// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ydoc implements the replicated document used to compute version
// diffs: an operation log per writing client, a set of named root
// containers built from those operations, and the binary update format
// that carries operations between replicas.
//
// # Model
//
// Every operation is an Item with identity (client, clock). Items form a
// chain per client (the client's log) and a tree through parent references:
// an item's parent is either a named root container or another item whose
// content is a nested container. Sequences are ordered with the YATA rules
// (origin / right origin), map entries are last-writer-wins per key.
//
// Deleting never removes an item. It is recorded in the document's
// DeleteSet and, when garbage collection is enabled, the item's content is
// dropped. Children of a deleted container become GC placeholders that
// keep only their identity.
//
// # Lifetime
//
// A Doc is process-local and single-owner. It is not safe for concurrent
// use; callers build one per computation and call Destroy when done:
//
//	doc, err := ydoc.Build([][]byte{update})
//	if err != nil {
//	    return err
//	}
//	defer doc.Destroy()
//
// Snapshots returned by Doc.Snapshot are immutable and may be shared freely.
package ydoc

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Option configures a Doc.
type Option func(*Doc)

// WithGC enables or disables garbage collection of deleted content.
//
// Replicas that must keep deleted content (to render old snapshots or to
// read identity metadata attached to deleted operations) disable it.
func WithGC(enabled bool) Option {
	return func(d *Doc) { d.gc = enabled }
}

// WithClientID sets the client id used for local transactions.
func WithClientID(client uint64) Option {
	return func(d *Doc) { d.clientID = client }
}

// Doc is an in-memory replica of one document's operation log.
//
// Thread Safety: NOT safe for concurrent use. Snapshots are.
type Doc struct {
	clientID uint64
	gc       bool

	store   map[uint64][]*Item
	share   map[string]*Type
	deleted *DeleteSet

	pending   []*Item
	pendingDS *DeleteSet

	// tx is the open local transaction, changed the items deleted since
	// the last garbage collection pass.
	tx      *Transaction
	changed []*Item

	afterTx   []func(tx *Transaction)
	onDestroy []func()
	destroy   sync.Once
	destroyed bool
}

// NewDoc creates an empty replica. Garbage collection is enabled and the
// client id is random unless overridden.
func NewDoc(opts ...Option) *Doc {
	d := &Doc{
		clientID:  uint64(rand.Uint32()),
		gc:        true,
		store:     make(map[uint64][]*Item),
		share:     make(map[string]*Type),
		deleted:   NewDeleteSet(),
		pendingDS: NewDeleteSet(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Build creates a fresh replica and applies deltas in order.
//
// Description:
//
//	Deltas are commutative and idempotent at the operation level, so the
//	resulting state does not depend on how the history was split as long
//	as causal dependencies are included. On error the replica is destroyed
//	before returning.
//
// Inputs:
//
//	deltas - Binary updates to apply, in order.
//	opts - Replica options.
//
// Outputs:
//
//	*Doc - The replica. Caller owns it and must call Destroy.
//	error - Non-nil (wrapping ErrMalformedUpdate) if any delta is invalid.
func Build(deltas [][]byte, opts ...Option) (*Doc, error) {
	d := NewDoc(opts...)
	for _, delta := range deltas {
		if err := d.ApplyUpdate(delta); err != nil {
			d.Destroy()
			return nil, err
		}
	}
	return d, nil
}

// ClientID returns the id used for local transactions.
func (d *Doc) ClientID() uint64 {
	return d.clientID
}

// GC reports whether garbage collection is enabled.
func (d *Doc) GC() bool {
	return d.gc
}

// OnDestroy registers fn to run once when the replica is destroyed.
func (d *Doc) OnDestroy(fn func()) {
	d.onDestroy = append(d.onDestroy, fn)
}

// OnAfterTransaction registers fn to run at the end of every local
// transaction, before its update is encoded. Changes made by fn are part of
// the same update.
func (d *Doc) OnAfterTransaction(fn func(tx *Transaction)) {
	d.afterTx = append(d.afterTx, fn)
}

// Destroy releases the operation log and all containers.
//
// Safe to call multiple times; observers registered with OnDestroy run
// exactly once.
func (d *Doc) Destroy() {
	d.destroy.Do(func() {
		d.destroyed = true
		d.store = make(map[uint64][]*Item)
		d.share = make(map[string]*Type)
		d.deleted = NewDeleteSet()
		d.pending = nil
		d.pendingDS = NewDeleteSet()
		d.changed = nil
		d.afterTx = nil
		for _, fn := range d.onDestroy {
			fn()
		}
		d.onDestroy = nil
	})
}

// Destroyed reports whether Destroy has been called.
func (d *Doc) Destroyed() bool {
	return d.destroyed
}

// StateVector returns a copy of the replica's state vector.
func (d *Doc) StateVector() StateVector {
	sv := make(StateVector, len(d.store))
	for client, structs := range d.store {
		sv[client] = uint64(len(structs))
	}
	return sv
}

// DeleteSet returns a copy of the replica's delete set.
func (d *Doc) DeleteSet() *DeleteSet {
	return d.deleted.Clone()
}

// Snapshot captures the replica's current causal instant.
func (d *Doc) Snapshot() Snapshot {
	return Snapshot{sv: d.StateVector(), ds: d.deleted.Clone()}
}

// Clients returns the ids of all clients with operations in the log,
// in ascending order.
func (d *Doc) Clients() []uint64 {
	clients := make([]uint64, 0, len(d.store))
	for client := range d.store {
		clients = append(clients, client)
	}
	slices.Sort(clients)
	return clients
}

// Structs returns the log of one client ordered by clock. GC placeholders
// are included. The returned slice must not be modified.
func (d *Doc) Structs(client uint64) []*Item {
	return d.store[client]
}

// Find returns the item with the given id, or nil if the replica has not
// seen it.
func (d *Doc) Find(id ID) *Item {
	structs := d.store[id.Client]
	if id.Clock >= uint64(len(structs)) {
		return nil
	}
	return structs[id.Clock]
}

func (d *Doc) findPtr(id *ID) *Item {
	if id == nil {
		return nil
	}
	return d.Find(*id)
}

// HasPending reports whether operations or deletions are waiting for
// missing causal dependencies.
func (d *Doc) HasPending() bool {
	return len(d.pending) > 0 || !d.pendingDS.IsEmpty()
}

// RootNames returns the names of all root containers, sorted.
func (d *Doc) RootNames() []string {
	names := make([]string, 0, len(d.share))
	for name := range d.share {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Root returns the root container with the given name if it exists.
func (d *Doc) Root(name string) (*Type, bool) {
	t, ok := d.share[name]
	return t, ok
}

// XmlFragment returns the named root as an XML fragment, creating it if needed.
func (d *Doc) XmlFragment(name string) *Type {
	return d.root(name, TypeXmlFragment)
}

// Map returns the named root as a map, creating it if needed.
func (d *Doc) Map(name string) *Type {
	return d.root(name, TypeMap)
}

// Array returns the named root as an array, creating it if needed.
func (d *Doc) Array(name string) *Type {
	return d.root(name, TypeArray)
}

// Text returns the named root as rich text, creating it if needed.
func (d *Doc) Text(name string) *Type {
	return d.root(name, TypeText)
}

func (d *Doc) root(name string, kind TypeKind) *Type {
	t, ok := d.share[name]
	if !ok {
		t = newType(d, kind, "")
		t.root = name
		d.share[name] = t
	}
	if t.kind == TypeUnknown {
		t.kind = kind
	}
	return t
}
