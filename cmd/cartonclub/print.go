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

	"cartonclub/internal/layout"
	"cartonclub/internal/printer"
)

func newPagesCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "Show how the focused collection is laid out on sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, ok := store.Focused()
			if !ok {
				return errNoFocus
			}
			pages, err := layout.Paginate(c.Content, layout.CardsPerPage)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%q is empty\n", c.Name)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tSLOT\tPRINT#\tCARD\tBLEED")
			for _, p := range pages {
				for i, pc := range p.Cards {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%gmm\n", p.Number, i+1, pc.PrintIndex+1, pc.Name, pc.Bleed)
				}
			}
			return tw.Flush()
		},
	}
}

func newPrintCmd(s *session) *cobra.Command {
	var (
		page   int
		host   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the focused collection to PDF",
		Long: `Print all sheets of the focused collection, or a single one with --page.

The pdf host draws the sheets itself; the browser host prints the HTML
document through headless Chrome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.collections(cmd.Context())
			if err != nil {
				return err
			}
			c, ok := store.Focused()
			if !ok {
				return errNoFocus
			}
			pages, err := layout.Paginate(c.Content, layout.CardsPerPage)
			if err != nil {
				return err
			}
			if page < 0 || page > len(pages) {
				return fmt.Errorf("--page must be between 1 and %d", len(pages))
			}

			driver, hostName, err := s.printer(host, outDir)
			if err != nil {
				return err
			}
			defer driver.Wait()

			var res printer.Result
			if page > 0 {
				res, err = driver.PrintPage(cmd.Context(), pages[page-1], c.Name)
			} else {
				res, err = driver.PrintAll(cmd.Context(), pages, c.Name)
			}
			if err != nil {
				return err
			}
			s.telemetry().PrintDone(hostName, res.Pages, res.Images, res.FailedImages, res.Elapsed)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d page(s) written to %s\n", res.Title, res.Pages, res.Output)
			if res.FailedImages > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d image(s) could not be loaded and print as placeholders\n", res.FailedImages, res.Images)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 0, "print only this sheet (1-based)")
	cmd.Flags().StringVar(&host, "host", "", "print host: pdf or browser (default from config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	return cmd
}
