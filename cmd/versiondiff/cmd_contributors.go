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

func (a *app) contributorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contributors VERSION",
		Short: "List every user recorded in a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := readUpdate(cmd.InOrStdin(), args[0], a.encoded)
			if err != nil {
				return err
			}
			users, err := a.differ.ListContributors(cmd.Context(), update)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), users)
		},
	}
}
