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

	"vnplayer/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the playback history index",
	}
	var q storage.HistoryQuery
	search := &cobra.Command{
		Use:   "search <dir> [query]",
		Short: "Full-text search over journaled lines",
		Long: `Search the lines journaled by "play --history". Without a query the lines
are listed in the order they were shown.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				q.Text = args[1]
			}
			h, err := storage.OpenHistory(args[0])
			if err != nil {
				return err
			}
			defer h.Close()
			lines, err := h.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			w := out(cmd)
			for _, l := range lines {
				text := l.Text
				if l.Snippet != "" {
					text = l.Snippet
				}
				who := ""
				if l.Speaker != "" {
					who = l.Speaker + ": "
				}
				fmt.Fprintf(w, "#%d %s[%d] %s%s\n", l.Session, l.ChapterID, l.Entry, who, strings.TrimSpace(text))
			}
			fmt.Fprintf(w, "%d lines\n", len(lines))
			return nil
		},
	}
	search.Flags().StringVar(&q.Speaker, "speaker", "", "only lines of this speaker")
	search.Flags().StringVar(&q.ChapterID, "chapter", "", "only lines of this chapter")
	search.Flags().Int64Var(&q.Session, "session", 0, "only lines of this session")
	search.Flags().IntVar(&q.Limit, "limit", 50, "maximum number of lines")
	search.Flags().IntVar(&q.Offset, "offset", 0, "skip this many lines")
	cmd.AddCommand(search)
	return cmd
}
