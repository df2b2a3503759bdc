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
	"fmt"
	"maps"
	"slices"
)

// TypeKind identifies a container type.
type TypeKind uint8

const (
	// TypeUnknown is a root that has received operations but has not been
	// accessed through a typed view yet.
	TypeUnknown TypeKind = iota
	TypeArray
	TypeMap
	TypeText
	TypeXmlElement
	TypeXmlFragment
	TypeXmlText
)

// String returns the kind name.
func (k TypeKind) String() string {
	switch k {
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	case TypeText:
		return "text"
	case TypeXmlElement:
		return "xml_element"
	case TypeXmlFragment:
		return "xml_fragment"
	case TypeXmlText:
		return "xml_text"
	default:
		return "unknown"
	}
}

// Type is a container: a root of the document or the content of an Item.
// Sequence children are linked from start; map entries are keyed by
// ParentSub with the newest write last.
type Type struct {
	doc     *Doc
	kind    TypeKind
	name    string
	item    *Item
	root    string
	start   *Item
	entries map[string]*Item
}

func newType(doc *Doc, kind TypeKind, name string) *Type {
	return &Type{doc: doc, kind: kind, name: name, entries: make(map[string]*Item)}
}

// Kind returns the container kind.
func (t *Type) Kind() TypeKind {
	return t.kind
}

// Name returns the node name of an XmlElement.
func (t *Type) Name() string {
	return t.name
}

// Item returns the item holding the container, nil for roots.
func (t *Type) Item() *Item {
	return t.item
}

// RootName returns the root name, or "" for nested containers.
func (t *Type) RootName() string {
	return t.root
}

// first returns the leftmost item of the sequence (sub == nil) or of the
// history of map key *sub.
func (t *Type) first(sub *string) *Item {
	if sub == nil {
		return t.start
	}
	it := t.entries[*sub]
	for it != nil && it.left != nil {
		it = it.left
	}
	return it
}

// visible returns the live, countable sequence items in order.
func (t *Type) visible() []*Item {
	var out []*Item
	for it := t.start; it != nil; it = it.right {
		if !it.Deleted() && it.Content.countable() {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of live sequence positions.
func (t *Type) Len() int {
	return len(t.visible())
}

// neighbours returns the items between which content inserted at
// sequence position index goes.
func (t *Type) neighbours(index int) (left, right *Item, err error) {
	if index < 0 {
		return nil, nil, fmt.Errorf("insert at %d: %w", index, ErrIndexOutOfRange)
	}
	n := 0
	right = t.start
	for right != nil && n < index {
		if !right.Deleted() && right.Content.countable() {
			n++
		}
		left = right
		right = right.right
	}
	if n < index {
		return nil, nil, fmt.Errorf("insert at %d of %d: %w", index, n, ErrIndexOutOfRange)
	}
	// land outside attribute runs that end here
	for right != nil && right.Content.Kind == ContentFormat && right.Content.Value == nil {
		left = right
		right = right.right
	}
	return left, right, nil
}

func (t *Type) insert(tx *Transaction, index int, contents ...Content) ([]*Item, error) {
	if err := tx.check(t); err != nil {
		return nil, err
	}
	left, right, err := t.neighbours(index)
	if err != nil {
		return nil, err
	}
	out := make([]*Item, 0, len(contents))
	for _, c := range contents {
		left = tx.newItem(t, left, right, nil, c)
		out = append(out, left)
	}
	return out, nil
}

// Insert inserts JSON values into an array at index.
func (t *Type) Insert(tx *Transaction, index int, values ...any) error {
	contents := make([]Content, 0, len(values))
	for _, v := range values {
		c, err := valueContent(v)
		if err != nil {
			return err
		}
		contents = append(contents, c)
	}
	_, err := t.insert(tx, index, contents...)
	return err
}

// Push appends JSON values to an array.
func (t *Type) Push(tx *Transaction, values ...any) error {
	return t.Insert(tx, t.Len(), values...)
}

// PushBinary appends a binary value to an array.
func (t *Type) PushBinary(tx *Transaction, b []byte) error {
	_, err := t.insert(tx, t.Len(), Content{Kind: ContentBinary, Bytes: slices.Clone(b)})
	return err
}

// InsertType inserts a nested container into a sequence at index.
func (t *Type) InsertType(tx *Transaction, index int, kind TypeKind, name string) (*Type, error) {
	items, err := t.insert(tx, index, Content{Kind: ContentType, Type: newType(t.doc, kind, name)})
	if err != nil {
		return nil, err
	}
	return items[0].Content.Type, nil
}

// InsertElement inserts an XML element named name at index.
func (t *Type) InsertElement(tx *Transaction, index int, name string) (*Type, error) {
	return t.InsertType(tx, index, TypeXmlElement, name)
}

// InsertXmlText inserts an empty XML text node at index.
func (t *Type) InsertXmlText(tx *Transaction, index int) (*Type, error) {
	return t.InsertType(tx, index, TypeXmlText, "")
}

// InsertText inserts text at index. Non-empty attrs format the inserted
// characters; each attribute is closed right after them.
func (t *Type) InsertText(tx *Transaction, index int, text string, attrs map[string]any) error {
	keys := slices.Sorted(maps.Keys(attrs))
	var contents []Content
	for _, k := range keys {
		v, err := normalizeJSON(attrs[k])
		if err != nil {
			return err
		}
		contents = append(contents, Content{Kind: ContentFormat, Key: k, Value: v})
	}
	for _, r := range text {
		contents = append(contents, Content{Kind: ContentString, Text: string(r)})
	}
	for _, k := range keys {
		contents = append(contents, Content{Kind: ContentFormat, Key: k})
	}
	_, err := t.insert(tx, index, contents...)
	return err
}

// Delete deletes length live positions starting at index.
func (t *Type) Delete(tx *Transaction, index, length int) error {
	if err := tx.check(t); err != nil {
		return err
	}
	items := t.visible()
	if index < 0 || length < 0 || index+length > len(items) {
		return fmt.Errorf("delete [%d,%d) of %d: %w", index, index+length, len(items), ErrIndexOutOfRange)
	}
	for _, it := range items[index : index+length] {
		tx.doc.markDeleted(it)
	}
	return nil
}

// Set writes a JSON value under key.
func (t *Type) Set(tx *Transaction, key string, value any) error {
	c, err := valueContent(value)
	if err != nil {
		return err
	}
	_, err = t.set(tx, key, c)
	return err
}

// SetType writes a new nested container under key.
func (t *Type) SetType(tx *Transaction, key string, kind TypeKind) (*Type, error) {
	it, err := t.set(tx, key, Content{Kind: ContentType, Type: newType(t.doc, kind, "")})
	if err != nil {
		return nil, err
	}
	return it.Content.Type, nil
}

func (t *Type) set(tx *Transaction, key string, c Content) (*Item, error) {
	if err := tx.check(t); err != nil {
		return nil, err
	}
	sub := key
	return tx.newItem(t, t.entries[key], nil, &sub, c), nil
}

// Remove deletes the entry under key, if any.
func (t *Type) Remove(tx *Transaction, key string) error {
	if err := tx.check(t); err != nil {
		return err
	}
	if it := t.entries[key]; it != nil {
		tx.doc.markDeleted(it)
	}
	return nil
}

// Get returns the live value under key: a JSON value, []byte or *Type.
func (t *Type) Get(key string) (any, bool) {
	it := t.entries[key]
	if it == nil || it.Deleted() {
		return nil, false
	}
	return itemValue(it), true
}

// Keys returns the live keys in ascending order.
func (t *Type) Keys() []string {
	var keys []string
	for k, it := range t.entries {
		if !it.Deleted() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Attributes returns the live entries of an XML element as JSON values.
func (t *Type) Attributes() map[string]any {
	out := make(map[string]any)
	for _, k := range t.Keys() {
		v, _ := t.Get(k)
		out[k] = v
	}
	return out
}

// Values returns the live sequence values: strings for characters, JSON
// values, []byte or *Type.
func (t *Type) Values() []any {
	items := t.visible()
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, itemValue(it))
	}
	return out
}

// Children returns the live nested containers of a sequence.
func (t *Type) Children() []*Type {
	var out []*Type
	for _, it := range t.visible() {
		if it.Content.Kind == ContentType {
			out = append(out, it.Content.Type)
		}
	}
	return out
}

// String returns the live characters of a text container.
func (t *Type) String() string {
	var b []byte
	for _, it := range t.visible() {
		if it.Content.Kind == ContentString {
			b = append(b, it.Content.Text...)
		}
	}
	return string(b)
}

// TextRun is a stretch of text sharing the same attributes.
type TextRun struct {
	Text  string
	Attrs map[string]any
}

// Delta returns the text as runs of equally formatted characters.
func (t *Type) Delta() []TextRun {
	var (
		runs  []TextRun
		attrs = map[string]any{}
		buf   []byte
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		var a map[string]any
		if len(attrs) > 0 {
			a = maps.Clone(attrs)
		}
		runs = append(runs, TextRun{Text: string(buf), Attrs: a})
		buf = nil
	}
	for it := t.start; it != nil; it = it.right {
		if it.Deleted() {
			continue
		}
		switch it.Content.Kind {
		case ContentFormat:
			flush()
			if it.Content.Value == nil {
				delete(attrs, it.Content.Key)
			} else {
				attrs[it.Content.Key] = it.Content.Value
			}
		case ContentString:
			buf = append(buf, it.Content.Text...)
		}
	}
	flush()
	return runs
}

func valueContent(v any) (Content, error) {
	if b, ok := v.([]byte); ok {
		return Content{Kind: ContentBinary, Bytes: slices.Clone(b)}, nil
	}
	n, err := normalizeJSON(v)
	if err != nil {
		return Content{}, err
	}
	return Content{Kind: ContentAny, Value: n}, nil
}

func itemValue(it *Item) any {
	switch it.Content.Kind {
	case ContentString:
		return it.Content.Text
	case ContentAny:
		return it.Content.Value
	case ContentBinary:
		return it.Content.Bytes
	case ContentType:
		return it.Content.Type
	default:
		return nil
	}
}
