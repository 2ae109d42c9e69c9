/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cartonclub/internal/collection"
)

func newHistoryCmd(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved revisions of all collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := s.collections(cmd.Context()); err != nil {
				return err
			}
			h, err := s.historian()
			if err != nil {
				return err
			}
			revs, err := h.History(cmd.Context(), collection.StorageKey, limit)
			if err != nil {
				return err
			}
			if len(revs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No revisions saved yet.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REVISION\tSAVED\tSIZE")
			for _, r := range revs {
				fmt.Fprintf(tw, "%d\t%s\t%d B\n", r.ID, r.Saved.Local().Format(time.DateTime), r.Size)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of revisions to show")
	return cmd
}

func newRestoreCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <revision>",
		Short: "Restore all collections from a saved revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid revision %q", args[0])
			}
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			h, err := s.historian()
			if err != nil {
				return err
			}
			raw, err := h.Revision(cmd.Context(), collection.StorageKey, id)
			if err != nil {
				return err
			}
			if err := store.Restore(cmd.Context(), raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored revision %d (%d collection(s))\n", id, len(store.Collections()))
			return nil
		},
	}
}
