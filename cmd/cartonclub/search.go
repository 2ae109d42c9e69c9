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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cartonclub/internal/domain"
	"cartonclub/internal/drive"
)

func newSearchCmd(s *session) *cobra.Command {
	var (
		game     string
		folderIn string
		allTypes bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search card images by name in the shared folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.drive()
			if err != nil {
				return err
			}
			g, err := s.game(game)
			if err != nil {
				return err
			}
			defaults, err := s.defaultFolders(g)
			if err != nil {
				return err
			}
			res, err := client.Search(cmd.Context(), drive.SearchOptions{
				Name:       args[0],
				FolderIDs:  drive.ParseFolderIDs(folderIn, defaults),
				ImagesOnly: !allTypes,
				MaxResults: limit,
			})
			if err != nil {
				return err
			}
			if len(res.Files) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No match for %q in %d folder(s)\n", args[0], len(res.SearchedFolders))
				return nil
			}
			table, err := s.folders()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tNAME\tFOLDER\tBLEED")
			for i, f := range res.Files {
				folder, bleed := "?", "?"
				if row, ok := table.Lookup(f.Parents); ok {
					folder, bleed = row.Name, fmt.Sprintf("%gmm", row.Bleed)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, f.ID, f.Name, folder, bleed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game whose folders are searched (default from config)")
	cmd.Flags().StringVar(&folderIn, "folders", "", "comma separated folder ids instead of the game's folders")
	cmd.Flags().BoolVar(&allTypes, "all-types", false, "include files that are not images")
	cmd.Flags().IntVar(&limit, "max", 0, "maximum number of results")
	return cmd
}

func newFoldersCmd(s *session) *cobra.Command {
	var game string
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List the known card folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := s.folders()
			if err != nil {
				return err
			}
			games := domain.Games()
			if game != "" {
				g, ok := domain.ParseGame(game)
				if !ok {
					return fmt.Errorf("unknown game %q", game)
				}
				games = []domain.Game{g}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GAME\tID\tNAME\tBLEED\tCATEGORY\tAUTHOR")
			for _, g := range games {
				for _, f := range table.ByGame(g) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%gmm\t%s\t%s\n", g.DisplayName(), f.ID, f.Name, f.Bleed, f.SubCategory, f.Author)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "only folders of this game")
	return cmd
}
