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

// ContentKind identifies what an Item carries.
type ContentKind uint8

const (
	// ContentDeleted is what remains of deleted content after garbage collection.
	ContentDeleted ContentKind = iota + 1
	// ContentString is one character of text.
	ContentString
	// ContentAny is a JSON value.
	ContentAny
	// ContentBinary is an opaque byte string.
	ContentBinary
	// ContentFormat marks the start (non-nil value) or end (nil value) of a
	// text attribute.
	ContentFormat
	// ContentType is a nested container.
	ContentType
)

// String returns the kind name.
func (k ContentKind) String() string {
	switch k {
	case ContentDeleted:
		return "deleted"
	case ContentString:
		return "string"
	case ContentAny:
		return "any"
	case ContentBinary:
		return "binary"
	case ContentFormat:
		return "format"
	case ContentType:
		return "type"
	default:
		return "unknown"
	}
}

// Content is the payload of an Item. Only the fields matching Kind are set.
type Content struct {
	Kind ContentKind

	// Text holds exactly one character for ContentString.
	Text string

	// Value holds the JSON value for ContentAny and the attribute value for
	// ContentFormat. Numbers are json.Number.
	Value any

	// Bytes holds ContentBinary payloads.
	Bytes []byte

	// Key is the attribute name for ContentFormat.
	Key string

	// Type is the nested container for ContentType.
	Type *Type
}

// countable reports whether the content occupies a position in a sequence.
func (c Content) countable() bool {
	return c.Kind != ContentFormat
}

// Item is one operation in a client's log.
//
// The exported fields are the item's wire identity and are never modified
// after integration, with one exception: garbage collection replaces
// Content (and for placeholders clears the parent reference) in place.
//
// Exactly one of ParentRoot and ParentID is set on a non-GC item.
type Item struct {
	ID ID

	// Origin is the left neighbour at insertion time.
	Origin *ID
	// RightOrigin is the right neighbour at insertion time.
	RightOrigin *ID

	// ParentRoot names the root container that holds the item.
	ParentRoot string
	// ParentID identifies the item whose nested container holds the item.
	ParentID *ID
	// ParentSub is the map key for items stored in a map, nil for sequence items.
	ParentSub *string

	Content Content

	// GC marks a garbage-collected placeholder. It carries identity only.
	GC bool

	left    *Item
	right   *Item
	parent  *Type
	deleted bool
}

// Deleted reports whether the item has been deleted in this replica.
func (it *Item) Deleted() bool {
	return it.deleted || it.GC
}

// Parent returns the container the item was integrated into, or nil for
// GC placeholders and items whose parent could not be resolved.
func (it *Item) Parent() *Type {
	return it.parent
}

// Key returns the map key of a map entry.
func (it *Item) Key() (string, bool) {
	if it.ParentSub == nil {
		return "", false
	}
	return *it.ParentSub, true
}

// Left returns the item's current left neighbour.
func (it *Item) Left() *Item {
	return it.left
}

// Right returns the item's current right neighbour.
func (it *Item) Right() *Item {
	return it.right
}

// toGC turns the item into a placeholder that keeps only its identity.
func (it *Item) toGC() {
	it.GC = true
	it.deleted = true
	it.Origin = nil
	it.RightOrigin = nil
	it.ParentRoot = ""
	it.ParentID = nil
	it.ParentSub = nil
	it.Content = Content{}
	it.left = nil
	it.right = nil
	it.parent = nil
}
