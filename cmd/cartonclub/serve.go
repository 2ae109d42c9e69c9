/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"cartonclub/internal/notify"
	"cartonclub/internal/server"
)

func newServeCmd(s *session) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rec := &notify.Recorder{}
			s.notices = notify.Multi(s.notices, rec)

			store, err := s.collections(ctx)
			if err != nil {
				return err
			}
			table, err := s.folders()
			if err != nil {
				return err
			}
			if s.cfg.General.FoldersFile != "" {
				err := table.Watch(ctx, func(err error) {
					if err != nil {
						notify.Warnf(s.notices, "folder file not reloaded: %v", err)
						return
					}
					s.log.Info("folder table reloaded", slog.Int("folders", table.Len()))
				})
				if err != nil {
					s.log.Warn("folder file not watched", slog.Any("err", err))
				}
			}
			images, err := s.imageCache()
			if err != nil {
				return err
			}
			driver, _, err := s.printer("", "")
			if err != nil {
				return err
			}
			defer driver.Wait()
			x, err := s.exchanger(ctx)
			if err != nil {
				return err
			}
			game, err := s.game("")
			if err != nil {
				return err
			}

			deps := server.Deps{
				Store:    store,
				Folders:  table,
				Images:   images,
				Renderer: s.renderer(),
				Printer:  driver,
				Exchange: x,
				Notices:  rec,
			}
			if client, err := s.drive(); err == nil {
				deps.Search = client
				deps.MediaURL = client.MediaURL
			} else {
				s.log.Warn("search and image proxy disabled", slog.Any("err", err))
			}
			if addr == "" {
				addr = s.cfg.Server.Addr
			}
			return server.New(server.Config{Addr: addr, DefaultGame: game}, deps).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
