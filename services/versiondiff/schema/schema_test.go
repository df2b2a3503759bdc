// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsSingleton(t *testing.T) {
	var wg sync.WaitGroup
	got := make([]*Schema, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = Default()
		}()
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}

func TestDefault_Contents(t *testing.T) {
	s := Default()
	assert.Equal(t, "doc", s.Top())

	heading, ok := s.Node("heading")
	require.True(t, ok)
	assert.Equal(t, 1, heading.Attrs["level"])

	hr, ok := s.Node("horizontal_rule")
	require.True(t, ok)
	assert.True(t, hr.Leaf)

	_, ok = s.Node("table")
	assert.False(t, ok)

	link, ok := s.Mark("link")
	require.True(t, ok)
	assert.Contains(t, link.Attrs, "href")
	assert.Contains(t, s.MarkNames(), "bold")
	assert.Contains(t, s.NodeNames(), "paragraph")
}

func TestNew_Validation(t *testing.T) {
	_, err := New("doc", []NodeSpec{{Name: "doc"}, {Name: "doc"}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateType)

	_, err = New("doc", []NodeSpec{{Name: "doc"}}, []MarkSpec{{Name: "b"}, {Name: "b"}})
	assert.ErrorIs(t, err, ErrDuplicateType)

	_, err = New("doc", []NodeSpec{{Name: "paragraph"}}, nil)
	assert.ErrorIs(t, err, ErrMissingTop)
}

func TestNew_CopiesSpecs(t *testing.T) {
	attrs := map[string]any{"level": 1}
	s, err := New("doc", []NodeSpec{{Name: "doc"}, {Name: "h", Attrs: attrs}}, nil)
	require.NoError(t, err)
	attrs["level"] = 9

	h, _ := s.Node("h")
	assert.Equal(t, 1, h.Attrs["level"])
}
