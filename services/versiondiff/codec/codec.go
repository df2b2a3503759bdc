// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codec converts between raw update bytes and the text form used
// when they cross a serialization boundary (request bodies, storage
// records).
//
// The text form is standard base64 with padding.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCorruptPayload indicates text that is not a valid encoding.
var ErrCorruptPayload = errors.New("corrupt payload")

// Encode returns the text form of b. Nil and empty input encode to "".
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode returns the bytes of a text form produced by Encode.
//
// Outputs:
//
//	[]byte - The decoded bytes, never nil on success.
//	error - Wraps ErrCorruptPayload if s is not valid base64.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}
