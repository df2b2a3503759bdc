// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package versiondiff computes attributed diffs between two versions of a
// collaboratively edited document.
//
// A version is the binary state update of a replicated document. The
// Differ replays both versions into one private replica, takes the causal
// snapshots before and after the newer version, and resolves which users
// made the visible changes in between. The result is an Artifact that a
// renderer can use to show the newer content with the older content
// struck through.
//
// Basic usage:
//
//	d, err := versiondiff.New(versiondiff.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	art, err := d.ComputeVersionDiff(ctx, "document", current, previous)
//
// # Thread Safety
//
// A Differ is safe for concurrent use. Every call builds and destroys its
// own replica.
package versiondiff
