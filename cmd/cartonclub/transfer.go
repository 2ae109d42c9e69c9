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

	"github.com/spf13/cobra"

	"cartonclub/internal/exchange"
)

func newExportCmd(s *session) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the focused collection as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, err := s.exchanger(cmd.Context())
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = s.cfg.ExportDir()
			}
			path, err := x.Export(cmd.Context(), exchange.DirSink{Dir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Exported to", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	return cmd
}

func newImportCmd(s *session) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON collection into the focused one",
		Long: `Import a collection exported by Carton Club.

By default every imported card is added to the focused collection, bleed
grouping included. With --replace the focused collection is replaced by
the imported one as stored in the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := s.exchanger(cmd.Context())
			if err != nil {
				return err
			}
			mode := exchange.ModeMerge
			if replace {
				mode = exchange.ModeReplace
			}
			res, err := x.Import(cmd.Context(), exchange.FileSource(args[0]), mode)
			if err != nil {
				return err
			}
			s.telemetry().ImportDone(res.Mode.String(), res.Entries, res.Cards)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d card(s) in %d entr(ies) from %s (%s)\n", res.Cards, res.Entries, res.File, res.Mode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the focused collection instead of merging")
	return cmd
}
