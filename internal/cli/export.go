/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vnplayer/internal/bundle"
	"vnplayer/internal/export"
	"vnplayer/internal/storage"
)

func newExportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export manifests to other media",
	}
	var opt export.PDFOptions
	var page string
	pdf := &cobra.Command{
		Use:   "pdf <manifest> <out.pdf>",
		Short: "Render chapters as a printable script",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(page) {
			case "a4":
				opt.Page = export.PageA4
			case "letter":
				opt.Page = export.PageLetter
			default:
				return fmt.Errorf("unknown page size %q (a4 or letter)", page)
			}
			if opt.PlayerName == "" {
				opt.PlayerName = e.cfg.Player.InitialName()
			}
			if err := export.ChapterPDF(m, args[1], opt); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "wrote %s\n", args[1])
			return nil
		},
	}
	pdf.Flags().StringVar(&page, "page", "a4", "page size: a4 or letter")
	pdf.Flags().StringVar(&opt.Title, "title", "", "title page text (none when empty)")
	pdf.Flags().StringSliceVar(&opt.Chapters, "chapter", nil, "only these chapter IDs (repeatable)")
	pdf.Flags().BoolVar(&opt.IncludeCues, "cues", false, "print asset cues above each line")
	pdf.Flags().StringVar(&opt.PlayerName, "name", "", "name substituted for the player token")

	var dir string
	pack := &cobra.Command{
		Use:   "bundle <manifest> <out.zip>",
		Short: "Pack the manifest and its referenced assets into one zip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStory(args[0], assetsDir(e.cfg, args[0], dir))
			if err != nil {
				return err
			}
			res, err := bundle.Pack(args[0], s.Assets, s.Graph.Chapters, args[1])
			if err != nil {
				return err
			}
			w := out(cmd)
			for _, r := range res.Missing {
				fmt.Fprintf(w, "warning: %s %q not found, left out\n", r.Category, r.Key)
			}
			fmt.Fprintf(w, "wrote %s (%d files)\n", args[1], res.Files)
			return nil
		},
	}
	pack.Flags().StringVar(&dir, "assets", "", "assets directory (default from config)")

	cmd.AddCommand(pdf, pack)
	return cmd
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <bundle.zip> <dir>",
		Short: "Unpack a story bundle; existing files are kept",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := bundle.Install(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "installed %d files into %s\n", n, args[1])
			return nil
		},
	}
}
