// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package attribution decides which collaborators caused the changes
// between two snapshots of a replica.
//
// The engine walks every operation of the replica's log, keeps those that
// live under an allowed content root, and compares their visibility under
// the old and the new snapshot:
//
//	appeared    (!was && now) -> creator of the operation's client
//	disappeared (was && !now) -> user whose session deleted it
//
// Operations from clients the identity directory does not know are ignored.
package attribution

import "github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"

// IsInDeleteSet reports whether id is tombstoned in snap.
func IsInDeleteSet(id ydoc.ID, snap ydoc.Snapshot) bool {
	return snap.Deleted(id)
}

// IsVisible reports whether item was present and not deleted at snap.
func IsVisible(item *ydoc.Item, snap ydoc.Snapshot) bool {
	return snap.Observed(item.ID) && !IsInDeleteSet(item.ID, snap)
}
