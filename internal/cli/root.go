/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cli implements the vnplayer command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vnplayer/internal/config"
	"vnplayer/internal/crash"
	applog "vnplayer/internal/log"
)

// env is the state shared by every command: the merged configuration and
// the crash context the running command fills in.
type env struct {
	cfg      config.AppConfig
	dsn      string
	logLevel string
	crash    *crash.Context
	loaded   bool
}

func newEnv() *env { return &env{cfg: config.Defaults(), crash: &crash.Context{}} }

// NewRootCmd builds the command tree. Configuration is loaded in the
// persistent pre-run, so building commands touches nothing on disk.
func NewRootCmd() *cobra.Command { return newRootCmd(newEnv()) }

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "vnplayer",
		Short: "vnplayer - visual novel dialogue player",
		Long: `vnplayer plays chapter manifests of a visual novel.

Dialogue is revealed with a typewriter effect, optionally paced against voice
clips, while background, character and music cues are dispatched per entry.
Shells are available for the terminal, the desktop (fyne builds) and remote
clients over HTTP and websockets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup()
		},
	}
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	root.AddCommand(
		newVersionCmd(),
		newPlayCmd(e),
		newValidateCmd(e),
		newConvertCmd(),
		newVoicesCmd(),
		newExportCmd(e),
		newInstallCmd(),
		newHistoryCmd(),
		newServeCmd(e),
		newRemoteCmd(e),
		newDBCmd(e),
		newUICmd(e),
	)
	return root
}

// setup loads the configuration and sets up logging once per process.
func (e *env) setup() error {
	if e.loaded {
		return nil
	}
	cfg, dsn, err := config.Load()
	if err != nil {
		// Defaults apply when the file is broken.
		applog.WithComponent("cli").Warn("config load failed, using defaults", slog.Any("err", err))
	}
	e.cfg, e.dsn, e.loaded = cfg, dsn, true

	// The config already carries the VNP_LOG_* overrides.
	opts := applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
	if e.logLevel != "" {
		opts.Level = e.logLevel
	}
	applog.Init(opts)

	if p, err := config.ConfigPath(); err == nil {
		e.crash.Dir = filepath.Join(filepath.Dir(p), "crashes")
	}
	return nil
}

// Execute runs the root command and exits non-zero on error. Panics leave a
// crash report and exit 2.
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	e := newEnv()
	defer crash.Recover(e.crash)
	if err := newRootCmd(e).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
