// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package content reconstructs the final content tree of a document from a
// single update, for consumers that render content without history.
//
// The tree has the familiar rich text JSON shape:
//
//	{"type":"doc","content":[
//	    {"type":"paragraph","content":[
//	        {"type":"text","text":"Hello","marks":[{"type":"bold"}]}]}]}
package content

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/AleutianAI/trackchanges/services/versiondiff/schema"
	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

// DefaultRoot is the root container holding the document body.
const DefaultRoot = "default"

var (
	// ErrUnknownNodeType is returned for elements the schema does not know.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrUnknownMarkType is returned for text attributes the schema does not know.
	ErrUnknownMarkType = errors.New("unknown mark type")
)

// Node is one node of the content tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text mark.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRoot sets the root container to read. Default: DefaultRoot.
func WithRoot(root string) Option {
	return func(e *Extractor) { e.root = root }
}

// WithSchema sets the schema used to validate node and mark types.
// Default: schema.Default().
func WithSchema(s *schema.Schema) Option {
	return func(e *Extractor) { e.schema = s }
}

// Extractor converts updates to content trees. It holds no mutable state
// and is safe for concurrent use.
type Extractor struct {
	root   string
	schema *schema.Schema
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{root: DefaultRoot}
	for _, opt := range opts {
		opt(e)
	}
	if e.schema == nil {
		e.schema = schema.Default()
	}
	return e
}

// Extract builds the content tree of update with the default extractor.
func Extract(update []byte) (*Node, error) {
	return NewExtractor().Extract(update)
}

// Extract builds a throwaway replica from update and converts its content
// root to a tree.
//
// Outputs:
//
//	*Node - The top node. An update without content yields an empty top node.
//	error - Wraps ydoc.ErrMalformedUpdate, ErrUnknownNodeType or
//	        ErrUnknownMarkType.
func (e *Extractor) Extract(update []byte) (*Node, error) {
	doc, err := ydoc.Build([][]byte{update})
	if err != nil {
		return nil, fmt.Errorf("build replica: %w", err)
	}
	defer doc.Destroy()

	top := &Node{Type: e.schema.Top()}
	children, err := e.children(doc.XmlFragment(e.root))
	if err != nil {
		return nil, err
	}
	top.Content = children
	return top, nil
}

func (e *Extractor) children(t *ydoc.Type) ([]*Node, error) {
	var out []*Node
	for _, child := range t.Children() {
		switch child.Kind() {
		case ydoc.TypeXmlElement:
			n, err := e.element(child)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		case ydoc.TypeXmlText, ydoc.TypeText:
			nodes, err := e.text(child)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
	}
	return out, nil
}

func (e *Extractor) element(t *ydoc.Type) (*Node, error) {
	spec, ok := e.schema.Node(t.Name())
	if !ok {
		return nil, fmt.Errorf("%q: %w", t.Name(), ErrUnknownNodeType)
	}
	n := &Node{Type: spec.Name, Attrs: mergeAttrs(spec.Attrs, t.Attributes())}
	if spec.Leaf {
		return n, nil
	}
	children, err := e.children(t)
	if err != nil {
		return nil, fmt.Errorf("in %s: %w", spec.Name, err)
	}
	n.Content = children
	return n, nil
}

func (e *Extractor) text(t *ydoc.Type) ([]*Node, error) {
	var out []*Node
	for _, run := range t.Delta() {
		n := &Node{Type: "text", Text: run.Text}
		for _, key := range slices.Sorted(maps.Keys(run.Attrs)) {
			spec, ok := e.schema.Mark(key)
			if !ok {
				return nil, fmt.Errorf("%q: %w", key, ErrUnknownMarkType)
			}
			var attrs map[string]any
			if v, ok := run.Attrs[key].(map[string]any); ok {
				attrs = mergeAttrs(spec.Attrs, v)
			} else {
				attrs = mergeAttrs(spec.Attrs, nil)
			}
			n.Marks = append(n.Marks, Mark{Type: spec.Name, Attrs: attrs})
		}
		out = append(out, n)
	}
	return out, nil
}

// mergeAttrs overlays values on the schema defaults. Nil when both are empty.
func mergeAttrs(defaults, values map[string]any) map[string]any {
	if len(defaults) == 0 && len(values) == 0 {
		return nil
	}
	out := maps.Clone(defaults)
	if out == nil {
		out = make(map[string]any, len(values))
	}
	maps.Copy(out, values)
	return out
}
