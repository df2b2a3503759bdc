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

import "errors"

var (
	// ErrMalformedUpdate indicates bytes that are not a valid update,
	// snapshot, state vector or delete set.
	ErrMalformedUpdate = errors.New("malformed update")

	// ErrDestroyed is returned by operations on a destroyed replica.
	ErrDestroyed = errors.New("document destroyed")

	// ErrIndexOutOfRange is returned by local edits at an invalid position.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrWrongTransaction is returned when a transaction is used with a
	// container of another document, or after it has been committed.
	ErrWrongTransaction = errors.New("transaction does not belong to this document")

	// ErrNotContainer is returned when a container operation targets an
	// item that does not hold a nested type.
	ErrNotContainer = errors.New("item is not a container")
)
