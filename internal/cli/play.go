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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vnplayer/internal/playback"
	"vnplayer/internal/sched"
	"vnplayer/internal/term"
)

type playFlags struct {
	chapter string
	name    string
	fast    bool
	assets  string
	history string
	cues    bool
	width   int
}

func newPlayCmd(e *env) *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "play <manifest>",
		Short: "Play a manifest in the terminal",
		Long: `Play a chapter manifest in the terminal.

Enter advances (or completes the line being typed), b prints the backlog,
q quits. With --history the shown lines are journaled to the history index
in that directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("history") {
				f.history = e.cfg.General.HistoryDir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			st, err := loadStory(args[0], assetsDir(e.cfg, args[0], f.assets))
			if err != nil {
				return err
			}
			return e.play(ctx, cmd, st, f)
		},
	}
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "start at this chapter ID")
	cmd.Flags().StringVar(&f.name, "name", "", "player name (skips the saved one)")
	cmd.Flags().BoolVar(&f.fast, "fast", false, "shorten typewriter, fades and dwell tenfold")
	cmd.Flags().StringVar(&f.assets, "assets", "", "assets directory (default from config)")
	cmd.Flags().StringVar(&f.history, "history", "", "journal shown lines to the history index in this directory")
	cmd.Flags().BoolVar(&f.cues, "cues", false, "print background and character changes")
	cmd.Flags().IntVar(&f.width, "width", 72, "dialogue width in columns")
	return cmd
}

// play runs s in the terminal shell until it ends or the player quits.
func (e *env) play(ctx context.Context, cmd *cobra.Command, s *story, f playFlags) error {
	ch, err := s.start(f.chapter)
	if err != nil {
		return err
	}
	ss, err := e.openSession(ctx, s, f.history, f.name)
	if err != nil {
		return err
	}
	defer ss.Close()

	sh := term.New(term.Options{
		In:       cmd.InOrStdin(),
		Out:      out(cmd),
		Width:    f.width,
		ShowCues: f.cues,
		Backlog:  ss.Backlog,
	})
	ec := e.engineConfig(s, f.fast)
	ec.Display = sh
	ec.Prompter = sh
	ec.Observer = ss.Observers(sh)
	eng := playback.NewEngine(ec)
	if err := e.applyName(eng.Session, f.name); err != nil {
		return err
	}
	sh.Bind(sched.NewLoop(eng.Scheduler, 10*time.Millisecond), eng.Session)
	return sh.Run(ctx, ch)
}
