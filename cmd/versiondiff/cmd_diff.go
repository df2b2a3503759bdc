// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

func (a *app) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff CURRENT [PREVIOUS]",
		Short: "Compute the attributed diff between two versions",
		Long: `Computes the attributed diff of CURRENT against PREVIOUS and prints the
artifact as JSON. Without PREVIOUS, CURRENT is diffed as a first version.
Use "-" to read a version from stdin.

Examples:
  versiondiff diff v2.bin v1.bin
  versiondiff diff --encoded --doc-type page v2.txt v1.txt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := readUpdate(cmd.InOrStdin(), args[0], a.encoded)
			if err != nil {
				return err
			}
			var previous []byte
			if len(args) == 2 {
				previous, err = readUpdate(cmd.InOrStdin(), args[1], a.encoded)
				if err != nil {
					return err
				}
			}
			art, err := a.differ.ComputeVersionDiff(cmd.Context(), a.docType, current, previous)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), art)
		},
	}
}
