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

import "slices"

// ApplyUpdate integrates a binary update into the replica.
//
// Description:
//
//	Operations already known are skipped, so applying the same update twice
//	is a no-op. Operations whose dependencies (earlier clocks of the same
//	client, origins, parent) are missing are kept pending and retried on
//	later applies; deletions of unknown operations likewise.
//
// Outputs:
//
//	error - ErrMalformedUpdate (wrapped) if the bytes cannot be decoded, in
//	        which case the replica is unchanged; ErrDestroyed after Destroy.
func (d *Doc) ApplyUpdate(update []byte) error {
	if d.destroyed {
		return ErrDestroyed
	}
	u, err := DecodeUpdate(update)
	if err != nil {
		return err
	}
	d.apply(u)
	return nil
}

func (d *Doc) apply(u *Update) {
	structs := append(d.pending, u.Structs...)
	d.pending = nil
	d.integrateAll(structs)

	ds := d.pendingDS
	ds.Merge(u.DeleteSet)
	d.pendingDS = NewDeleteSet()
	d.applyDeleteSet(ds)

	d.collectGarbage()
}

// integrateAll integrates structs in causal order. Each client's structs
// are consumed in clock order; when one depends on an operation of another
// client that is also queued, that operation is integrated first.
// Structs that cannot be integrated end up in d.pending.
func (d *Doc) integrateAll(structs []*Item) {
	queues := make(map[uint64][]*Item)
	for _, it := range sortedStructs(structs) {
		if d.Find(it.ID) == nil {
			queues[it.ID.Client] = append(queues[it.ID.Client], it)
		}
	}
	clients := make([]uint64, 0, len(queues))
	for client := range queues {
		clients = append(clients, client)
	}
	slices.Sort(clients)

	next := func(client, upTo uint64) *Item {
		q := queues[client]
		if len(q) == 0 || q[0].ID.Clock > upTo {
			return nil
		}
		queues[client] = q[1:]
		return q[0]
	}

	var stack []*Item
	for _, client := range clients {
		for len(queues[client]) > 0 {
			stack = append(stack, next(client, ^uint64(0)))
			for len(stack) > 0 {
				it := stack[len(stack)-1]
				have := uint64(len(d.store[it.ID.Client]))
				switch {
				case it.ID.Clock < have:
					stack = stack[:len(stack)-1]
					continue
				case it.ID.Clock > have:
					if dep := next(it.ID.Client, have); dep != nil {
						stack = append(stack, dep)
						continue
					}
				default:
					missing := d.missingDependency(it)
					if missing == nil {
						d.integrate(it)
						stack = stack[:len(stack)-1]
						continue
					}
					if dep := next(missing.Client, missing.Clock); dep != nil {
						stack = append(stack, dep)
						continue
					}
				}
				// blocked on something this update does not carry
				d.pending = append(d.pending, stack...)
				stack = stack[:0]
			}
		}
	}
}

// missingDependency returns the first referenced id not yet in the store.
func (d *Doc) missingDependency(it *Item) *ID {
	if it.GC {
		return nil
	}
	for _, ref := range []*ID{it.Origin, it.RightOrigin, it.ParentID} {
		if ref != nil && d.Find(*ref) == nil {
			return ref
		}
	}
	return nil
}

// integrate appends it to its client's log and links it into its parent.
// All dependencies must be present.
func (d *Doc) integrate(it *Item) {
	d.store[it.ID.Client] = append(d.store[it.ID.Client], it)
	if it.GC {
		d.markGC(it)
		return
	}

	var parent *Type
	if it.ParentID != nil {
		p := d.Find(*it.ParentID)
		switch {
		case p.GC || p.Content.Kind == ContentDeleted:
			d.markGC(it)
			return
		case p.Content.Kind != ContentType:
			// orphan: stored, never linked
			return
		}
		parent = p.Content.Type
	} else {
		parent = d.root(it.ParentRoot, TypeUnknown)
	}

	left := d.findPtr(it.Origin)
	right := d.findPtr(it.RightOrigin)
	if (left != nil && left.GC) || (right != nil && right.GC) {
		d.markGC(it)
		return
	}

	if (left == nil && (right == nil || right.left != nil)) || (left != nil && left.right != right) {
		left = d.resolveConflicts(it, parent, left, right)
	}

	it.parent = parent
	it.left = left
	if left != nil {
		right = left.right
		left.right = it
	} else {
		right = parent.first(it.ParentSub)
		if it.ParentSub == nil {
			parent.start = it
		}
	}
	it.right = right
	if right != nil {
		right.left = it
	} else if it.ParentSub != nil {
		parent.entries[*it.ParentSub] = it
		if left != nil {
			d.markDeleted(left)
		}
	}

	if it.Content.Kind == ContentType {
		t := it.Content.Type
		t.doc = d
		t.item = it
	}

	if (parent.item != nil && parent.item.Deleted()) || (it.ParentSub != nil && it.right != nil) {
		d.markDeleted(it)
	}
}

// resolveConflicts finds the left neighbour of it among items inserted
// concurrently between left and right, following the YATA rules: items
// with the same origin are ordered by client id, and an item never lands
// to the left of an item whose origin lies between them.
func (d *Doc) resolveConflicts(it *Item, parent *Type, left, right *Item) *Item {
	var o *Item
	if left != nil {
		o = left.right
	} else {
		o = parent.first(it.ParentSub)
	}

	conflicting := make(map[*Item]struct{})
	beforeOrigin := make(map[*Item]struct{})
	for o != nil && o != right {
		beforeOrigin[o] = struct{}{}
		conflicting[o] = struct{}{}
		if sameID(it.Origin, o.Origin) {
			if o.ID.Client < it.ID.Client {
				left = o
				clear(conflicting)
			} else if sameID(it.RightOrigin, o.RightOrigin) {
				break
			}
		} else if oo := d.findPtr(o.Origin); oo != nil && contains(beforeOrigin, oo) {
			if !contains(conflicting, oo) {
				left = o
				clear(conflicting)
			}
		} else {
			break
		}
		o = o.right
	}
	return left
}

func contains(set map[*Item]struct{}, it *Item) bool {
	_, ok := set[it]
	return ok
}

// markDeleted deletes it and, for containers, everything inside.
func (d *Doc) markDeleted(it *Item) {
	if it.deleted {
		return
	}
	it.deleted = true
	d.deleted.Add(it.ID.Client, it.ID.Clock, 1)
	if d.tx != nil {
		d.tx.ds.Add(it.ID.Client, it.ID.Clock, 1)
	}
	d.changed = append(d.changed, it)

	if it.Content.Kind == ContentType {
		t := it.Content.Type
		for child := t.start; child != nil; child = child.right {
			d.markDeleted(child)
		}
		for _, entry := range t.entries {
			d.markDeleted(entry)
		}
	}
}

func (d *Doc) markGC(it *Item) {
	it.toGC()
	d.deleted.Add(it.ID.Client, it.ID.Clock, 1)
}

// applyDeleteSet deletes every known id in ds and keeps the rest pending.
func (d *Doc) applyDeleteSet(ds *DeleteSet) {
	for _, client := range ds.Clients() {
		have := uint64(len(d.store[client]))
		for _, r := range ds.Ranges(client) {
			for clock := r.Clock; clock < r.End(); clock++ {
				if clock >= have {
					d.pendingDS.Add(client, clock, r.End()-clock)
					break
				}
				d.markDeleted(d.store[client][clock])
			}
		}
	}
}

// collectGarbage drops the content of items deleted since the last pass.
// Children of deleted containers become placeholders.
func (d *Doc) collectGarbage() {
	changed := d.changed
	d.changed = nil
	if !d.gc {
		return
	}
	for _, it := range changed {
		if it.GC || !it.deleted {
			continue
		}
		if it.Content.Kind == ContentType {
			d.gcChildren(it.Content.Type)
		}
		it.Content = Content{Kind: ContentDeleted}
	}
}

func (d *Doc) gcChildren(t *Type) {
	var children []*Item
	for child := t.start; child != nil; child = child.right {
		children = append(children, child)
	}
	for _, entry := range t.entries {
		for e := entry; e != nil; e = e.left {
			children = append(children, e)
		}
	}
	for _, child := range children {
		if child.GC {
			continue
		}
		if child.Content.Kind == ContentType {
			d.gcChildren(child.Content.Type)
		}
		d.markGC(child)
	}
	t.start = nil
	clear(t.entries)
}
