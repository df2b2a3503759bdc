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
	"cmp"
	"fmt"
	"slices"
	"unicode/utf8"
)

const updateVersion = 1

// Wire references for item content. The GC placeholder has its own ref.
const (
	refGC byte = iota
	refDeleted
	refString
	refAny
	refBinary
	refFormat
	refType
)

const (
	flagOrigin      byte = 0x80
	flagRightOrigin byte = 0x40
	flagParentSub   byte = 0x20
	refMask         byte = 0x1f
)

const (
	parentRoot byte = 1
	parentItem byte = 2
)

// Update is a decoded binary update: operations grouped by client plus the
// deletions it carries.
type Update struct {
	Structs   []*Item
	DeleteSet *DeleteSet
}

// DecodeUpdate parses a binary update.
//
// Layout: version byte; section count; per section the client, the first
// clock, the number of structs and the structs themselves; then the delete
// set. Empty input and trailing bytes are malformed.
func DecodeUpdate(b []byte) (*Update, error) {
	d := newDecoder(b)
	if v := d.byte(); d.err == nil && v != updateVersion {
		return nil, fmt.Errorf("update version %d: %w", v, ErrMalformedUpdate)
	}
	u := &Update{}
	sections := d.count(3)
	for range sections {
		client := d.uvarint()
		clock := d.uvarint()
		n := d.count(1)
		if d.err == nil && clock+uint64(n) < clock {
			d.fail("clock overflow")
		}
		for i := range n {
			it := d.item(ID{Client: client, Clock: clock + uint64(i)})
			if d.err != nil {
				break
			}
			u.Structs = append(u.Structs, it)
		}
	}
	u.DeleteSet = d.deleteSet()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return u, nil
}

// Encode serializes the update. Structs are written sorted by id, one
// section per run of consecutive clocks; duplicates are written once.
func (u *Update) Encode() []byte {
	structs := sortedStructs(u.Structs)

	var sections [][]*Item
	for i, it := range structs {
		if i > 0 {
			prev := structs[i-1].ID
			if prev.Client == it.ID.Client && prev.Clock+1 == it.ID.Clock {
				last := len(sections) - 1
				sections[last] = append(sections[last], it)
				continue
			}
		}
		sections = append(sections, []*Item{it})
	}

	e := encoder{buf: []byte{updateVersion}}
	e.uvarint(uint64(len(sections)))
	for _, section := range sections {
		e.uvarint(section[0].ID.Client)
		e.uvarint(section[0].ID.Clock)
		e.uvarint(uint64(len(section)))
		for _, it := range section {
			e.item(it)
		}
	}
	ds := u.DeleteSet
	if ds == nil {
		ds = NewDeleteSet()
	}
	e.deleteSet(ds)
	return e.buf
}

// EncodeStateAsUpdate serializes the whole replica, including operations
// still waiting for dependencies, as one self-sufficient update.
func (d *Doc) EncodeStateAsUpdate() []byte {
	return d.encodeFrom(StateVector{}, d.deleted, true)
}

// EncodeStateAsUpdateFrom serializes the operations not covered by sv.
// The full delete set is always included.
func (d *Doc) EncodeStateAsUpdateFrom(sv StateVector) []byte {
	return d.encodeFrom(sv, d.deleted, true)
}

func (d *Doc) encodeFrom(sv StateVector, ds *DeleteSet, withPending bool) []byte {
	u := &Update{DeleteSet: ds.Clone()}
	for _, client := range d.Clients() {
		structs := d.store[client]
		if from := sv[client]; from < uint64(len(structs)) {
			u.Structs = append(u.Structs, structs[from:]...)
		}
	}
	if withPending {
		for _, it := range d.pending {
			if !sv.Has(it.ID) {
				u.Structs = append(u.Structs, it)
			}
		}
		u.DeleteSet.Merge(d.pendingDS)
	}
	return u.Encode()
}

// DiffUpdate returns the part of update not implied by sv: the operations
// at or above sv's clocks and the complete delete set.
func DiffUpdate(update []byte, sv StateVector) ([]byte, error) {
	u, err := DecodeUpdate(update)
	if err != nil {
		return nil, err
	}
	u.Structs = slices.DeleteFunc(u.Structs, func(it *Item) bool { return sv.Has(it.ID) })
	return u.Encode(), nil
}

// MergeUpdates combines several updates into one without building a replica.
func MergeUpdates(updates ...[]byte) ([]byte, error) {
	merged := &Update{DeleteSet: NewDeleteSet()}
	for i, b := range updates {
		u, err := DecodeUpdate(b)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		merged.Structs = append(merged.Structs, u.Structs...)
		merged.DeleteSet.Merge(u.DeleteSet)
	}
	return merged.Encode(), nil
}

// StateVectorFromUpdate returns the state vector a fresh replica would have
// after applying update, ignoring operations with gaps.
func StateVectorFromUpdate(update []byte) (StateVector, error) {
	u, err := DecodeUpdate(update)
	if err != nil {
		return nil, err
	}
	sv := StateVector{}
	for _, it := range sortedStructs(u.Structs) {
		if sv[it.ID.Client] == it.ID.Clock {
			sv[it.ID.Client] = it.ID.Clock + 1
		}
	}
	return sv, nil
}

// sortedStructs returns a copy of structs ordered by id without duplicates.
func sortedStructs(structs []*Item) []*Item {
	out := slices.Clone(structs)
	slices.SortFunc(out, compareItems)
	return slices.CompactFunc(out, func(a, b *Item) bool { return a.ID == b.ID })
}

func compareItems(a, b *Item) int {
	if c := cmp.Compare(a.ID.Client, b.ID.Client); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.Clock, b.ID.Clock)
}

func (e *encoder) item(it *Item) {
	if it.GC {
		e.byte(refGC)
		return
	}
	info := contentRef(it.Content.Kind)
	if it.Origin != nil {
		info |= flagOrigin
	}
	if it.RightOrigin != nil {
		info |= flagRightOrigin
	}
	if it.ParentSub != nil {
		info |= flagParentSub
	}
	e.byte(info)
	if it.Origin != nil {
		e.id(*it.Origin)
	}
	if it.RightOrigin != nil {
		e.id(*it.RightOrigin)
	}
	if it.ParentID != nil {
		e.byte(parentItem)
		e.id(*it.ParentID)
	} else {
		e.byte(parentRoot)
		e.string(it.ParentRoot)
	}
	if it.ParentSub != nil {
		e.string(*it.ParentSub)
	}
	e.content(it.Content)
}

func contentRef(kind ContentKind) byte {
	switch kind {
	case ContentString:
		return refString
	case ContentAny:
		return refAny
	case ContentBinary:
		return refBinary
	case ContentFormat:
		return refFormat
	case ContentType:
		return refType
	default:
		return refDeleted
	}
}

func (e *encoder) content(c Content) {
	switch c.Kind {
	case ContentString:
		e.string(c.Text)
	case ContentAny:
		b, err := marshalJSON(c.Value)
		if err != nil {
			// values are normalized before they are stored
			b = []byte("null")
		}
		e.bytes(b)
	case ContentBinary:
		e.bytes(c.Bytes)
	case ContentFormat:
		e.string(c.Key)
		b, err := marshalJSON(c.Value)
		if err != nil {
			b = []byte("null")
		}
		e.bytes(b)
	case ContentType:
		e.byte(byte(c.Type.kind))
		if c.Type.kind == TypeXmlElement {
			e.string(c.Type.name)
		}
	}
}

func (d *decoder) item(id ID) *Item {
	it := &Item{ID: id}
	info := d.byte()
	if d.err != nil {
		return nil
	}
	ref := info & refMask
	if ref == refGC {
		if info != refGC {
			d.fail("flags on gc struct %s", id)
			return nil
		}
		it.GC = true
		it.deleted = true
		return it
	}
	if info&flagOrigin != 0 {
		it.Origin = idRef(d.id())
	}
	if info&flagRightOrigin != 0 {
		it.RightOrigin = idRef(d.id())
	}
	switch d.byte() {
	case parentRoot:
		it.ParentRoot = d.string()
	case parentItem:
		it.ParentID = idRef(d.id())
	default:
		d.fail("invalid parent reference on %s", id)
		return nil
	}
	if info&flagParentSub != 0 {
		sub := d.string()
		it.ParentSub = &sub
	}
	it.Content = d.content(ref)
	if d.err != nil {
		return nil
	}
	return it
}

func (d *decoder) content(ref byte) Content {
	switch ref {
	case refDeleted:
		return Content{Kind: ContentDeleted}
	case refString:
		s := d.string()
		if d.err == nil && (utf8.RuneCountInString(s) != 1 || !utf8.ValidString(s)) {
			d.fail("string content must be one character")
		}
		return Content{Kind: ContentString, Text: s}
	case refAny:
		v := d.json()
		return Content{Kind: ContentAny, Value: v}
	case refBinary:
		return Content{Kind: ContentBinary, Bytes: d.bytes()}
	case refFormat:
		key := d.string()
		v := d.json()
		return Content{Kind: ContentFormat, Key: key, Value: v}
	case refType:
		kind := TypeKind(d.byte())
		if d.err != nil {
			return Content{}
		}
		if kind <= TypeUnknown || kind > TypeXmlText {
			d.fail("unknown type kind %d", kind)
			return Content{}
		}
		var name string
		if kind == TypeXmlElement {
			name = d.string()
		}
		return Content{Kind: ContentType, Type: newType(nil, kind, name)}
	default:
		d.fail("unknown content ref %d", ref)
		return Content{}
	}
}

func (d *decoder) json() any {
	b := d.bytes()
	if d.err != nil {
		return nil
	}
	v, err := unmarshalJSON(b)
	if err != nil {
		d.fail("invalid json content: %v", err)
		return nil
	}
	return v
}
