/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cartonclub/internal/collection"
	"cartonclub/internal/domain"
	"cartonclub/internal/version"
)

func newRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "cartonclub",
		Short: "Build printable A4 proxy sheets from card collections",
		Long: `Carton Club keeps collections of card images found in shared Drive folders
and prints them as A4 sheets of nine 63x88mm cards with cutting guides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			s.setOutput(cmd.ErrOrStderr())
			s.telemetry()
		},
	}
	root.AddCommand(
		newVersionCmd(),
		newNewCmd(s),
		newListCmd(s),
		newFocusCmd(s),
		newRenameCmd(s),
		newDeleteCmd(s),
		newAddCmd(s),
		newRemoveCmd(s),
		newQtyCmd(s),
		newPagesCmd(s),
		newPrintCmd(s),
		newExportCmd(s),
		newImportCmd(s),
		newSearchCmd(s),
		newFoldersCmd(s),
		newHistoryCmd(s),
		newRestoreCmd(s),
		newServeCmd(s),
		newConfigCmd(s),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Carton Club", version.String())
		},
	}
}

// resolve finds a collection by id, then by exact name, then by a unique
// case-insensitive name prefix.
func resolve(store *collection.Store, ref string) (domain.Collection, error) {
	if c, ok := store.Get(ref); ok {
		return c, nil
	}
	var prefix []domain.Collection
	for _, c := range store.Collections() {
		if c.Name == ref {
			return c, nil
		}
		if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(ref)) {
			prefix = append(prefix, c)
		}
	}
	switch len(prefix) {
	case 1:
		return prefix[0], nil
	case 0:
		return domain.Collection{}, fmt.Errorf("no collection matches %q", ref)
	default:
		return domain.Collection{}, fmt.Errorf("%q matches %d collections, use the id", ref, len(prefix))
	}
}

var errNoFocus = errors.New("no collection is focused; run 'cartonclub new' or 'cartonclub focus'")
