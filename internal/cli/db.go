/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vnplayer/internal/assets"
	"vnplayer/internal/backend"
	"vnplayer/internal/config"
	"vnplayer/internal/script"
	"vnplayer/internal/storage"
)

func newDBCmd(e *env) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Store and load manifests in Postgres",
		Long: `Manage manifests in a Postgres database. The DSN comes from --dsn,
VNP_PG_DSN or the OS keychain, in that order.`,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN")

	open := func(ctx context.Context) (*backend.Store, context.Context, context.CancelFunc, error) {
		d := dsn
		if d == "" {
			d = e.dsn
		}
		if d == "" {
			return nil, nil, nil, errors.New("no Postgres DSN: use --dsn, VNP_PG_DSN or store one with 'db login'")
		}
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Backend.Timeout())
		st, err := backend.Open(ctx, d, e.cfg.Backend.MaxConns)
		if err != nil {
			cancel()
			return nil, nil, nil, err
		}
		return st, ctx, cancel, nil
	}

	var name string
	importCmd := &cobra.Command{
		Use:   "import <manifest>",
		Short: "Import a manifest file, replacing a stored one of the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			st, ctx, cancel, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer st.Close()
			n := name
			if n == "" {
				n = manifestName(args[0])
			}
			if err := st.Import(ctx, n, m); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "imported %s as %q (%d chapters)\n", args[0], n, len(m.Chapters))
			return nil
		},
	}
	importCmd.Flags().StringVar(&name, "name", "", "stored name (default: file name without extension)")

	var (
		loadName string
		outPath  string
		play     bool
		pf       playFlags
	)
	loadCmd := &cobra.Command{
		Use:   "load [startChapterID]",
		Short: "Load the chapters reachable from a start chapter",
		Long: `Load a stored manifest from its start chapter (or the given one), following
next links. The result is written to --out, played in the terminal with
--play, or otherwise listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := ""
			if len(args) == 1 {
				start = args[0]
			}
			st, ctx, cancel, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer st.Close()
			n, err := pickManifest(ctx, st, loadName)
			if err != nil {
				return err
			}
			switch {
			case outPath != "":
				m, err := st.Load(ctx, n, start)
				if err != nil {
					return err
				}
				if err := storage.Save(outPath, m); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "wrote %s (%d chapters)\n", outPath, len(m.Chapters))
				return nil
			case play:
				fs := assets.NewFS(assetsDir(e.cfg, "", pf.assets))
				g, err := st.Graph(ctx, n, start, fs)
				if err != nil {
					return err
				}
				cancel()
				if !cmd.Flags().Changed("history") {
					pf.history = e.cfg.General.HistoryDir
				}
				s := &story{Path: n, Graph: g, Assets: fs}
				pctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return e.play(pctx, cmd, s, pf)
			default:
				m, err := st.Load(ctx, n, start)
				if err != nil {
					return err
				}
				printOutline(cmd, m)
				return nil
			}
		},
	}
	loadCmd.Flags().StringVar(&loadName, "name", "", "stored manifest name (optional when only one is stored)")
	loadCmd.Flags().StringVar(&outPath, "out", "", "write the loaded chapters to this manifest file")
	loadCmd.Flags().BoolVar(&play, "play", false, "play the loaded chapters in the terminal")
	loadCmd.Flags().StringVar(&pf.assets, "assets", "", "assets directory for --play (default from config)")
	loadCmd.Flags().StringVar(&pf.history, "history", "", "history directory for --play")
	loadCmd.Flags().BoolVar(&pf.fast, "fast", false, "shorten pacing for --play")
	loadCmd.Flags().StringVar(&pf.name, "player", "", "player name for --play")
	pf.width = 72

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored manifests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, ctx, cancel, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer st.Close()
			list, err := st.List(ctx)
			if err != nil {
				return err
			}
			for _, sm := range list {
				fmt.Fprintf(out(cmd), "%s\tstart=%s\tchapters=%d\timported=%s\n", sm.Name, sm.Start, sm.Chapters, sm.ImportedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	var (
		searchName string
		limit      int
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over stored dialogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ctx, cancel, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer st.Close()
			hits, err := st.Search(ctx, searchName, args[0], limit)
			if err != nil {
				return err
			}
			for _, h := range hits {
				who := ""
				if h.Speaker != "" {
					who = h.Speaker + ": "
				}
				fmt.Fprintf(out(cmd), "%s/%s[%d] %s%s\n", h.Manifest, h.Chapter, h.Entry, who, h.Snippet)
			}
			return nil
		},
	}
	searchCmd.Flags().StringVar(&searchName, "name", "", "only this manifest")
	searchCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of hits")

	var forget bool
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Save the --dsn in the OS keychain (or remove it with --forget)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if forget {
				return config.ForgetDSN()
			}
			if dsn == "" {
				return errors.New("--dsn is required")
			}
			return config.Save(e.cfg, dsn)
		},
	}
	loginCmd.Flags().BoolVar(&forget, "forget", false, "remove the stored DSN")

	cmd.AddCommand(importCmd, loadCmd, listCmd, searchCmd, loginCmd)
	return cmd
}

// pickManifest returns name, or the only stored manifest when name is empty.
func pickManifest(ctx context.Context, st *backend.Store, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	list, err := st.List(ctx)
	if err != nil {
		return "", err
	}
	if len(list) != 1 {
		return "", fmt.Errorf("%d manifests stored; pick one with --name", len(list))
	}
	return list[0].Name, nil
}

func printOutline(cmd *cobra.Command, m script.Manifest) {
	w := out(cmd)
	for _, ch := range m.Chapters {
		next := ch.Next
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d entries\tnext=%s\n", ch.ID, ch.Number, ch.Title, len(ch.Entries), next)
	}
}
