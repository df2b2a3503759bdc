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

// Transaction groups local edits into one update.
type Transaction struct {
	doc      *Doc
	beforeSV StateVector
	ds       *DeleteSet
	done     bool
}

// Doc returns the replica the transaction edits.
func (tx *Transaction) Doc() *Doc {
	return tx.doc
}

// DeleteSet returns the ids deleted so far in this transaction.
func (tx *Transaction) DeleteSet() *DeleteSet {
	return tx.ds.Clone()
}

// Transact runs fn as one local transaction and returns the update it
// produced.
//
// Description:
//
//	Hooks registered with OnAfterTransaction run after fn, inside the same
//	transaction, so their edits are part of the returned update. Edits are
//	applied as they are made. If fn fails, the edits made before the
//	failure remain in the replica; they are still passed to the hooks and
//	returned together with the error.
//
// Outputs:
//
//	[]byte - The update with the operations and deletions of the transaction.
//	error - ErrDestroyed, or the error returned by fn.
func (d *Doc) Transact(fn func(tx *Transaction) error) ([]byte, error) {
	if d.destroyed {
		return nil, ErrDestroyed
	}
	if d.tx != nil {
		return nil, fmt.Errorf("nested transaction: %w", ErrWrongTransaction)
	}
	tx := &Transaction{doc: d, beforeSV: d.StateVector(), ds: NewDeleteSet()}
	d.tx = tx
	defer func() { d.tx = nil }()

	err := fn(tx)
	for _, hook := range d.afterTx {
		hook(tx)
	}
	tx.done = true
	d.collectGarbage()

	return d.encodeFrom(tx.beforeSV, tx.ds, false), err
}

// check verifies that tx may edit t.
func (tx *Transaction) check(t *Type) error {
	if tx == nil || tx.done || t.doc != tx.doc {
		return ErrWrongTransaction
	}
	if tx.doc.destroyed {
		return ErrDestroyed
	}
	return nil
}

// newItem creates and integrates a local operation.
func (tx *Transaction) newItem(parent *Type, left, right *Item, sub *string, content Content) *Item {
	d := tx.doc
	it := &Item{
		ID:        ID{Client: d.clientID, Clock: uint64(len(d.store[d.clientID]))},
		ParentSub: sub,
		Content:   content,
	}
	if left != nil {
		it.Origin = idRef(left.ID)
	}
	if right != nil {
		it.RightOrigin = idRef(right.ID)
	}
	if parent.item != nil {
		it.ParentID = idRef(parent.item.ID)
	} else {
		it.ParentRoot = parent.root
	}
	d.integrate(it)
	return it
}
