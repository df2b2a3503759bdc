// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codec

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	inputs := [][]byte{nil, {}, {0}, {0xff, 0xfe}, []byte("hello, world")}
	for range 50 {
		b := make([]byte, rng.IntN(300))
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		out, err := Decode(Encode(in))
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		if len(in) > 0 {
			assert.Equal(t, in, out)
		}
	}
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
	b, err := Decode("")
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Empty(t, b)
}

func TestDecode_Corrupt(t *testing.T) {
	for _, s := range []string{"!!!", "abc", "a===", "AQ="} {
		t.Run(s, func(t *testing.T) {
			_, err := Decode(s)
			assert.ErrorIs(t, err, ErrCorruptPayload)
		})
	}
}
