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
	"gopkg.in/yaml.v3"

	"cartonclub/internal/config"
)

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if s.cfgErr != nil {
					return s.cfgErr
				}
				b, err := yaml.Marshal(s.cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if p, err := config.ConfigPath(); err == nil {
					fmt.Fprintf(out, "# %s\n", p)
				}
				_, _ = out.Write(b)
				key := "not set"
				if s.apiKey != "" {
					key = "set (" + mask(s.apiKey) + ")"
				}
				fmt.Fprintf(out, "# drive api key: %s\n", key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set-key <api key>",
			Short: "Store the Drive API key in the OS keychain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := strings.TrimSpace(args[0])
				if key == "" {
					return errors.New("empty api key")
				}
				if err := config.Save(s.cfg, key); err != nil {
					return err
				}
				s.apiKey = key
				fmt.Fprintln(cmd.OutOrStdout(), "API key saved to the keychain")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete-key",
			Short: "Remove the Drive API key from the OS keychain",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := config.DeleteAPIKey(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
				return nil
			},
		},
	)
	return cmd
}

func mask(key string) string {
	if len(key) <= 6 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-6) + key[len(key)-3:]
}
