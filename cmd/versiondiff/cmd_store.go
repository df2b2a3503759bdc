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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackchanges/services/versiondiff/store"
)

func (a *app) storeCmd() *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Keep document versions in a local store and diff them",
	}
	storeCmd.AddCommand(
		a.storePutCmd(),
		a.storeListCmd(),
		a.storeDiffCmd(),
		a.storeHistoryCmd(),
	)
	return storeCmd
}

// versionSummary is a stored version without its update.
type versionSummary struct {
	DocID     string    `json:"doc_id"`
	Seq       uint64    `json:"seq"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(v *store.Version) versionSummary {
	return versionSummary{DocID: v.DocID, Seq: v.Seq, ID: v.ID, CreatedAt: v.CreatedAt}
}

func (a *app) withStore(fn func(s *store.Store) error) error {
	cfg := store.DefaultConfig(a.storePath)
	cfg.Logger = a.logger.Slog()
	s, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) storePutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put DOC VERSION",
		Short: "Append a version to a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := readUpdate(cmd.InOrStdin(), args[1], a.encoded)
			if err != nil {
				return err
			}
			return a.withStore(func(s *store.Store) error {
				v, err := s.Put(cmd.Context(), args[0], update)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summarize(v))
			})
		},
	}
}

func (a *app) storeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [DOC]",
		Short: "List the versions of a document, or all documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				if len(args) == 0 {
					docs, err := s.Documents(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), docs)
				}
				versions, err := s.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := make([]versionSummary, 0, len(versions))
				for _, v := range versions {
					out = append(out, summarize(v))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func (a *app) storeDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff DOC [SEQ]",
		Short: "Diff a stored version against its predecessor (default: latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				ctx := cmd.Context()
				current, err := a.storedVersion(ctx, s, args)
				if err != nil {
					return err
				}
				previous := ""
				if current.Seq > 1 {
					prev, err := s.Get(ctx, current.DocID, current.Seq-1)
					if err != nil {
						return err
					}
					previous = prev.Update
				}
				art, err := a.differ.ComputeVersionDiffEncoded(ctx, a.docType, current.Update, previous)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), art)
			})
		},
	}
}

func (a *app) storedVersion(ctx context.Context, s *store.Store, args []string) (*store.Version, error) {
	if len(args) < 2 {
		return s.Latest(ctx, args[0])
	}
	seq, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || seq == 0 {
		return nil, fmt.Errorf("invalid sequence number %q", args[1])
	}
	return s.Get(ctx, args[0], seq)
}

func (a *app) storeHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history DOC",
		Short: "Diff every stored version of a document against its predecessor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				versions, err := s.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
				}
				updates := make([][]byte, len(versions))
				for i, v := range versions {
					if updates[i], err = v.Bytes(); err != nil {
						return fmt.Errorf("version %d: %w", v.Seq, err)
					}
				}
				arts, err := a.differ.DiffHistory(cmd.Context(), a.docType, updates)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), arts)
			})
		},
	}
}
