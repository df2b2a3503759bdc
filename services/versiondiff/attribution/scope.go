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
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

// MaxParentDepth bounds the parent walk of RootOf.
const MaxParentDepth = 1 << 12

// ErrStructuralViolation indicates a log whose shape breaks the assumptions
// of the traversal, such as a parent that is not a container.
var ErrStructuralViolation = errors.New("structural violation")

// Log is read access to a replica's operations grouped by client.
// *ydoc.Doc implements it.
type Log interface {
	Clients() []uint64
	Structs(client uint64) []*ydoc.Item
	Find(id ydoc.ID) *ydoc.Item
}

var _ Log = (*ydoc.Doc)(nil)

// RootOf returns the name of the root container that item belongs to.
//
// Outputs:
//
//	string - The root name when ok is true.
//	bool - False if the chain ends in a missing, deleted or garbage
//	       collected ancestor.
//	error - Wraps ErrStructuralViolation if an ancestor is not a container,
//	        an item has no parent reference, or the chain is deeper than
//	        MaxParentDepth.
func RootOf(log Log, item *ydoc.Item) (string, bool, error) {
	cur := item
	for range MaxParentDepth {
		if cur.GC {
			return "", false, nil
		}
		if cur.ParentID == nil {
			if cur.ParentRoot == "" {
				return "", false, fmt.Errorf("%w: %s has no parent", ErrStructuralViolation, cur.ID)
			}
			return cur.ParentRoot, true, nil
		}
		parent := log.Find(*cur.ParentID)
		if parent == nil || parent.GC {
			return "", false, nil
		}
		switch parent.Content.Kind {
		case ydoc.ContentType:
			cur = parent
		case ydoc.ContentDeleted:
			return "", false, nil
		default:
			return "", false, fmt.Errorf("%w: parent %s of %s holds %s content",
				ErrStructuralViolation, parent.ID, cur.ID, parent.Content.Kind)
		}
	}
	return "", false, fmt.Errorf("%w: parent chain of %s deeper than %d",
		ErrStructuralViolation, item.ID, MaxParentDepth)
}

// RootSet is an immutable allow-list of root names.
type RootSet struct {
	names map[string]struct{}
}

// NewRootSet returns a set of the given names.
func NewRootSet(names ...string) RootSet {
	s := RootSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// Contains reports whether root is allowed.
func (s RootSet) Contains(root string) bool {
	_, ok := s.names[root]
	return ok
}

// Names returns the allowed names, sorted.
func (s RootSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
