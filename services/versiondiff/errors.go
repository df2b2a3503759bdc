// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package versiondiff

import (
	"errors"

	"github.com/AleutianAI/trackchanges/services/versiondiff/codec"
)

var (
	// ErrCorruptPayload indicates a version that is not valid text encoding
	// or not a valid update. It is the same value as codec.ErrCorruptPayload.
	ErrCorruptPayload = codec.ErrCorruptPayload

	// ErrUnknownDocumentType is returned for a document type with no
	// configured content roots.
	ErrUnknownDocumentType = errors.New("unknown document type")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)
