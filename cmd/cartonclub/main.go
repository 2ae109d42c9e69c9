/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command cartonclub builds printable proxy sheets from card collections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cartonclub/internal/config"
	"cartonclub/internal/crash"
	applog "cartonclub/internal/log"
)

func main() { os.Exit(run(os.Args[1:])) }

func run(args []string) int {
	cfg, apiKey, cfgErr := config.Load()
	applog.Init(logOptions(cfg))
	defer func() { _ = applog.Close() }()

	sess := newSession(cfg, apiKey, cfgErr)
	defer sess.Close()
	defer crash.Recover(sess, cfg.General.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(sess)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func logOptions(cfg config.AppConfig) applog.Options {
	o := applog.FromEnv()
	o.Level = cfg.Logging.Level
	o.Format = cfg.Logging.Format
	o.AddSource = cfg.Logging.Source
	o.File = cfg.Logging.File
	return o
}
