/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"github.com/spf13/cobra"

	"vnplayer/internal/display"
	"vnplayer/internal/playback"
	"vnplayer/internal/ui"
)

func newUICmd(e *env) *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "ui <manifest>",
		Short: "Play a manifest in the desktop window (fyne builds)",
		Long: `Open the desktop player. Space or Enter advances, B shows the backlog and
H hides the dialogue box. Needs a binary built with -tags fyne.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("history") {
				f.history = e.cfg.General.HistoryDir
			}
			s, err := loadStory(args[0], assetsDir(e.cfg, args[0], f.assets))
			if err != nil {
				return err
			}
			ch, err := s.start(f.chapter)
			if err != nil {
				return err
			}
			ss, err := e.openSession(cmd.Context(), s, f.history, f.name)
			if err != nil {
				return err
			}
			defer ss.Close()

			var nameErr error
			build := func(d display.Display, p playback.NamePrompter, o playback.Observer) *playback.Engine {
				ec := e.engineConfig(s, f.fast)
				ec.Display = d
				ec.Prompter = p
				ec.Observer = ss.Observers(o)
				eng := playback.NewEngine(ec)
				nameErr = e.applyName(eng.Session, f.name)
				return eng
			}
			if err := ui.Run(ui.Options{
				Title:   "vnplayer - " + s.name(),
				Start:   ch,
				Build:   build,
				Backlog: ss.Backlog,
				Crash:   e.crash,
			}); err != nil {
				return err
			}
			return nameErr
		},
	}
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "start at this chapter ID")
	cmd.Flags().StringVar(&f.name, "name", "", "player name")
	cmd.Flags().BoolVar(&f.fast, "fast", false, "shorten typewriter, fades and dwell tenfold")
	cmd.Flags().StringVar(&f.assets, "assets", "", "assets directory (default from config)")
	cmd.Flags().StringVar(&f.history, "history", "", "journal shown lines to the history index in this directory")
	return cmd
}
