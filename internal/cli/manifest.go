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
	"os"

	"github.com/spf13/cobra"

	"vnplayer/internal/assets"
	"vnplayer/internal/domain"
	"vnplayer/internal/storage"
)

func newValidateCmd(e *env) *cobra.Command {
	var (
		dir    string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest and the assets it references",
		Long: `Load a manifest, validate it against the schema and link its chapters,
then look up every referenced asset. Missing assets are warnings unless
--strict is set; playback tolerates them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Decode directly: Load would fall back to a backup and hide the problem.
			f, err := storage.FormatOf(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := storage.Decode(data, f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			s := &story{Path: args[0], Manifest: m, Assets: assets.NewFS(assetsDir(e.cfg, args[0], dir))}
			if s.Graph, err = storage.Link(m, s.Assets); err != nil {
				return err
			}
			missing, err := s.Assets.Preload(cmd.Context(), assets.Refs(s.Graph.Chapters...), 8)
			if err != nil {
				return err
			}
			w := out(cmd)
			for _, r := range missing {
				fmt.Fprintf(w, "warning: %s %q not found under %s\n", r.Category, r.Key, s.Assets.Root())
			}
			entries := 0
			for _, ch := range s.Graph.Chapters {
				entries += ch.Len()
			}
			fmt.Fprintf(w, "%s: %d chapters, %d entries, start %q\n", args[0], len(s.Graph.Chapters), entries, s.Graph.Start.ID)
			if strict && len(missing) > 0 {
				return fmt.Errorf("%d missing assets", len(missing))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "assets", "", "assets directory (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when assets are missing")
	return cmd
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a manifest between .vns, .yaml and .json",
		Long: `Read a manifest and write it in the format the output extension names.
An existing output file is backed up before it is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			if err := storage.Save(args[1], m); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "wrote %s (%d chapters)\n", args[1], len(m.Chapters))
			return nil
		},
	}
}

func newVoicesCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "voices <manifest> <assets-dir>",
		Short: "Assign voice clips to entries by file number",
		Long: `Assign voiceClipName on each chapter's entries from the numbered files in
<assets-dir>/Voice/<chapter id>/: 001.wav goes to the first entry, 002.wav to
the second. Entries that already have voice data are kept. The manifest is
rewritten in place unless --dry-run is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			fs := assets.NewFS(args[1])
			w := out(cmd)
			total := 0
			for i := range m.Chapters {
				ch := &m.Chapters[i]
				keys, err := fs.ListIn(domain.CategoryVoice, ch.ID)
				if err != nil {
					return err
				}
				n := storage.AssignVoices(ch, keys)
				fmt.Fprintf(w, "%s: %d of %d entries assigned\n", ch.ID, n, len(ch.Entries))
				total += n
			}
			if dryRun || total == 0 {
				return nil
			}
			return storage.Save(args[0], m)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing the manifest")
	return cmd
}
