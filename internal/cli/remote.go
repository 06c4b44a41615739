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
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vnplayer/internal/remote"
)

func newRemoteCmd(e *env) *cobra.Command {
	var (
		url     string
		token   string
		secret  string
		chapter string
	)
	client := func() (*remote.Client, error) {
		if url == "" {
			url = "http://" + e.cfg.General.ServerAddr
		}
		if token == "" {
			if secret == "" {
				secret = os.Getenv(EnvRemoteSecret)
			}
			if secret != "" {
				t, err := remote.SignToken(secret, "player", time.Now().Add(time.Hour))
				if err != nil {
					return nil, err
				}
				token = t
			}
		}
		return remote.NewClient(url, token), nil
	}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a session started with serve",
	}
	cmd.PersistentFlags().StringVar(&url, "url", "", "server base URL (default from config server_addr)")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	cmd.PersistentFlags().StringVar(&secret, "secret", "", "sign a token with this secret instead of --token")

	run := func(fn func(cmd *cobra.Command, c *remote.Client, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return fn(cmd, c, args)
		}
	}
	backlogCmd := &cobra.Command{
		Use:   "backlog [n]",
		Short: "Print the most recent lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, c *remote.Client, args []string) error {
			n := 10
			if len(args) == 1 {
				if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n <= 0 {
					return fmt.Errorf("invalid count %q", args[0])
				}
			}
			lines, err := c.Backlog(cmd.Context(), n, chapter)
			if err != nil {
				return err
			}
			for _, l := range lines {
				who := ""
				if l.Speaker != "" {
					who = l.Speaker + ": "
				}
				fmt.Fprintf(out(cmd), "%s[%d] %s%s\n", l.Chapter, l.Entry, who, l.Text)
			}
			return nil
		}),
	}
	backlogCmd.Flags().StringVar(&chapter, "chapter", "", "only lines of this chapter ID")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "state",
			Short: "Print the current state",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, c *remote.Client, _ []string) error {
				st, err := c.State(cmd.Context())
				if err != nil {
					return err
				}
				printState(out(cmd), st)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "advance",
			Short: "Advance the session",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, c *remote.Client, _ []string) error {
				st, err := c.Advance(cmd.Context())
				if err != nil {
					return err
				}
				printState(out(cmd), st)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "name <name>",
			Short: "Submit the player name",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, c *remote.Client, args []string) error {
				st, err := c.SubmitName(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printState(out(cmd), st)
				return nil
			}),
		},
		backlogCmd,
	)
	return cmd
}

func printState(w io.Writer, st remote.StateResponse) {
	fmt.Fprintf(w, "%s  %s[%d] player=%s\n", st.State, st.Chapter, st.Entry, st.Player)
	if st.Speaker != "" {
		fmt.Fprintln(w, st.Speaker)
	}
	for _, l := range st.Lines {
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(l, " "))
	}
}
