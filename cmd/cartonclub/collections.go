/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cartonclub/internal/domain"
	"cartonclub/internal/drive"
	"cartonclub/internal/layout"
)

func newNewCmd(s *session) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty collection and focus it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, err := store.CreateCollection(cmd.Context())
			if err != nil {
				return err
			}
			if name != "" {
				if err := store.RenameCollection(cmd.Context(), c.ID, name); err != nil {
					return err
				}
				c.Name = name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s)\n", c.Name, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "name instead of the default")
	return cmd
}

func newListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List collections; the focused one is marked with *",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			cs := store.Collections()
			if len(cs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections yet. Create one with 'cartonclub new'.")
				return nil
			}
			focused, _ := store.Focused()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tCARDS\tPAGES\tBLEED")
			for _, c := range cs {
				mark := ""
				if c.ID == focused.ID {
					mark = color.New(color.FgGreen, color.Bold).Sprint("*")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%gmm\n", mark, c.ID, c.Name, c.CardCount(),
					layout.PageCount(c.Content, layout.CardsPerPage), c.Bleed)
			}
			return tw.Flush()
		},
	}
}

func newFocusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "focus <id|name>",
		Short: "Focus a collection; cards are added to and printed from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, err := resolve(store, args[0])
			if err != nil {
				return err
			}
			if err := store.FocusCollection(cmd.Context(), c.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Focused %q\n", c.Name)
			return nil
		},
	}
}

func newRenameCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id|name> <new name>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, err := resolve(store, args[0])
			if err != nil {
				return err
			}
			if err := store.RenameCollection(cmd.Context(), c.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", c.Name, args[1])
			return nil
		},
	}
}

func newDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete a collection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, err := resolve(store, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteCollection(cmd.Context(), c.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", c.Name)
			return nil
		},
	}
}

func newAddCmd(s *session) *cobra.Command {
	var (
		fromJSON string
		pick     int
		copies   int
		game     string
	)
	cmd := &cobra.Command{
		Use:   "add [card name]",
		Short: "Add a card to the focused collection",
		Long: `Add a card to the focused collection, creating one if nothing is focused.

The card is either searched by name in the folders of the selected game
(--pick chooses among several matches) or given as a JSON card reference
with --json (a file path, or - for stdin).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if copies < 1 {
				return errors.New("--copies must be at least 1")
			}
			var ref domain.CardRef
			switch {
			case fromJSON != "":
				r, err := readCardRef(cmd, fromJSON)
				if err != nil {
					return err
				}
				ref = r
			case len(args) == 1:
				r, err := searchOne(cmd, s, args[0], game, pick)
				if err != nil {
					return err
				}
				ref = r
			default:
				return errors.New("give a card name or --json")
			}

			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			var e domain.Entry
			for i := 0; i < copies; i++ {
				if e, err = store.AddCard(cmd.Context(), ref); err != nil {
					return err
				}
			}
			c, _ := store.Focused()
			fmt.Fprintf(cmd.OutOrStdout(), "%s x%d in %q (bleed %gmm)\n", e.Name, e.Quantity, c.Name, e.Bleed)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromJSON, "json", "", "read the card reference from a JSON file (- for stdin)")
	cmd.Flags().IntVar(&pick, "pick", 1, "which search match to add (1-based)")
	cmd.Flags().IntVarP(&copies, "copies", "c", 1, "number of copies to add")
	cmd.Flags().StringVar(&game, "game", "", "game whose folders are searched")
	return cmd
}

func readCardRef(cmd *cobra.Command, src string) (domain.CardRef, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return domain.CardRef{}, err
	}
	var ref domain.CardRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("invalid card reference: %w", err)
	}
	if ref.ID == "" {
		return ref, errors.New("card reference has no id")
	}
	if ref.ImageURL == "" {
		ref = drive.Enhance(ref)
	}
	return ref, nil
}

func searchOne(cmd *cobra.Command, s *session, name, gameFlag string, pick int) (domain.CardRef, error) {
	client, err := s.drive()
	if err != nil {
		return domain.CardRef{}, err
	}
	g, err := s.game(gameFlag)
	if err != nil {
		return domain.CardRef{}, err
	}
	ids, err := s.defaultFolders(g)
	if err != nil {
		return domain.CardRef{}, err
	}
	res, err := client.Search(cmd.Context(), drive.SearchOptions{Name: name, FolderIDs: ids, ImagesOnly: true})
	if err != nil {
		return domain.CardRef{}, err
	}
	if len(res.Files) == 0 {
		return domain.CardRef{}, fmt.Errorf("no card matches %q", name)
	}
	if pick < 1 || pick > len(res.Files) {
		return domain.CardRef{}, fmt.Errorf("--pick must be between 1 and %d", len(res.Files))
	}
	if len(res.Files) > 1 && !cmd.Flags().Changed("pick") {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d matches, adding the first; see 'cartonclub search %s'\n", len(res.Files), name)
	}
	return res.Files[pick-1], nil
}

func newRemoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <card id>",
		Short: "Remove one copy of a card from the focused collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := store.Focused(); !ok {
				return errNoFocus
			}
			if err := store.RemoveCard(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d left\n", args[0], store.CardQuantity(args[0]))
			return nil
		},
	}
}

func newQtyCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "qty <card id>",
		Short: "Show how many copies of a card the focused collection holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.CardQuantity(args[0]))
			return nil
		},
	}
}
