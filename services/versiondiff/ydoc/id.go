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

import "strconv"

// ID identifies one operation: the client that wrote it and the client's
// logical clock at the time.
type ID struct {
	Client uint64
	Clock  uint64
}

// String returns "client:clock".
func (id ID) String() string {
	return strconv.FormatUint(id.Client, 10) + ":" + strconv.FormatUint(id.Clock, 10)
}

func sameID(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idRef(id ID) *ID {
	return &id
}
