// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema is the registry of node and mark types a content tree may
// contain.
//
// The registry is immutable once built. Default returns the process-wide
// instance, built on first use and shared by all goroutines.
package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	// ErrDuplicateType is returned by New when a name is registered twice.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrMissingTop is returned by New when the top node is not registered.
	ErrMissingTop = errors.New("top node not registered")
)

// NodeSpec describes a node type.
type NodeSpec struct {
	// Name is the node type name, e.g. "paragraph".
	Name string
	// Attrs holds the attributes the node always has and their defaults.
	Attrs map[string]any
	// Leaf nodes have no content.
	Leaf bool
}

// MarkSpec describes a mark type.
type MarkSpec struct {
	Name  string
	Attrs map[string]any
}

// Schema is an immutable set of node and mark types.
type Schema struct {
	top   string
	nodes map[string]NodeSpec
	marks map[string]MarkSpec
}

// New builds a schema. Specs are copied.
func New(top string, nodes []NodeSpec, marks []MarkSpec) (*Schema, error) {
	s := &Schema{
		top:   top,
		nodes: make(map[string]NodeSpec, len(nodes)),
		marks: make(map[string]MarkSpec, len(marks)),
	}
	for _, n := range nodes {
		if _, dup := s.nodes[n.Name]; dup {
			return nil, fmt.Errorf("node %q: %w", n.Name, ErrDuplicateType)
		}
		n.Attrs = maps.Clone(n.Attrs)
		s.nodes[n.Name] = n
	}
	for _, m := range marks {
		if _, dup := s.marks[m.Name]; dup {
			return nil, fmt.Errorf("mark %q: %w", m.Name, ErrDuplicateType)
		}
		m.Attrs = maps.Clone(m.Attrs)
		s.marks[m.Name] = m
	}
	if _, ok := s.nodes[top]; !ok {
		return nil, fmt.Errorf("%q: %w", top, ErrMissingTop)
	}
	return s, nil
}

// Top returns the name of the document node.
func (s *Schema) Top() string {
	return s.top
}

// Node returns the spec of a node type. The returned Attrs must not be modified.
func (s *Schema) Node(name string) (NodeSpec, bool) {
	n, ok := s.nodes[name]
	return n, ok
}

// Mark returns the spec of a mark type. The returned Attrs must not be modified.
func (s *Schema) Mark(name string) (MarkSpec, bool) {
	m, ok := s.marks[name]
	return m, ok
}

// NodeNames returns the registered node names, sorted.
func (s *Schema) NodeNames() []string {
	return slices.Sorted(maps.Keys(s.nodes))
}

// MarkNames returns the registered mark names, sorted.
func (s *Schema) MarkNames() []string {
	return slices.Sorted(maps.Keys(s.marks))
}

// Default returns the built-in rich text schema.
var Default = sync.OnceValue(func() *Schema {
	s, err := New("doc", defaultNodes, defaultMarks)
	if err != nil {
		panic(fmt.Sprintf("schema: invalid built-in schema: %v", err))
	}
	return s
})

var defaultNodes = []NodeSpec{
	{Name: "doc"},
	{Name: "paragraph"},
	{Name: "heading", Attrs: map[string]any{"level": 1}},
	{Name: "blockquote"},
	{Name: "code_block", Attrs: map[string]any{"language": nil}},
	{Name: "bullet_list"},
	{Name: "ordered_list", Attrs: map[string]any{"order": 1}},
	{Name: "list_item"},
	{Name: "horizontal_rule", Leaf: true},
	{Name: "hard_break", Leaf: true},
	{Name: "image", Leaf: true, Attrs: map[string]any{"src": nil, "alt": nil, "title": nil}},
	{Name: "text", Leaf: true},
}

var defaultMarks = []MarkSpec{
	{Name: "bold"},
	{Name: "italic"},
	{Name: "underline"},
	{Name: "strike"},
	{Name: "code"},
	{Name: "link", Attrs: map[string]any{"href": nil, "title": nil}},
}
