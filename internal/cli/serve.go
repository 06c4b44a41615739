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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vnplayer/internal/display"
	applog "vnplayer/internal/log"
	"vnplayer/internal/playback"
	"vnplayer/internal/remote"
	"vnplayer/internal/sched"
	"vnplayer/internal/textlayout"
)

// EnvRemoteSecret holds the token secret for serve and the remote client.
const EnvRemoteSecret = "VNP_REMOTE_SECRET"

type serveFlags struct {
	addr       string
	secret     string
	printToken bool
	chapter    string
	name       string
	assets     string
	history    string
	fast       bool
	width      int
}

func newServeCmd(e *env) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve <manifest>",
		Short: "Serve a playback session over HTTP and websockets",
		Long: `Play a manifest for remote shells. Clients read the state from
/api/state, advance with POST /api/advance, submit names with POST /api/name
and receive display updates on /ws. With a secret set (flag or
VNP_REMOTE_SECRET) every API call needs a bearer token; --print-token prints
one valid for 24 hours.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.addr == "" {
				f.addr = e.cfg.General.ServerAddr
			}
			if f.secret == "" {
				f.secret = os.Getenv(EnvRemoteSecret)
			}
			if !cmd.Flags().Changed("history") {
				f.history = e.cfg.General.HistoryDir
			}
			if f.printToken {
				if f.secret == "" {
					return errors.New("--print-token needs a secret")
				}
				tok, err := remote.SignToken(f.secret, "player", time.Now().Add(24*time.Hour))
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), tok)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&f.secret, "secret", "", "token secret; empty disables auth")
	cmd.Flags().BoolVar(&f.printToken, "print-token", false, "print a client token before serving")
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "start at this chapter ID")
	cmd.Flags().StringVar(&f.name, "name", "", "player name")
	cmd.Flags().StringVar(&f.assets, "assets", "", "assets directory (default from config)")
	cmd.Flags().StringVar(&f.history, "history", "", "journal shown lines to the history index in this directory")
	cmd.Flags().BoolVar(&f.fast, "fast", false, "shorten typewriter, fades and dwell tenfold")
	cmd.Flags().IntVar(&f.width, "width", 48, "wrap width sent to clients, in characters")
	return cmd
}

func (e *env) serve(ctx context.Context, manifest string, f serveFlags) error {
	s, err := loadStory(manifest, assetsDir(e.cfg, manifest, f.assets))
	if err != nil {
		return err
	}
	ch, err := s.start(f.chapter)
	if err != nil {
		return err
	}
	ss, err := e.openSession(ctx, s, f.history, f.name)
	if err != nil {
		return err
	}
	defer ss.Close()

	srv := remote.New(remote.Options{
		Addr:   f.addr,
		Secret: f.secret,
		Box:    textlayout.Box{Width: float32(f.width)},
		Logger: applog.WithComponent("remote"),
	})
	rec := display.NewRecorder(false)
	ec := e.engineConfig(s, f.fast)
	ec.Display = display.Multi(rec, srv.Display())
	ec.Prompter = srv
	ec.Observer = ss.Observers(srv)
	eng := playback.NewEngine(ec)
	if err := e.applyName(eng.Session, f.name); err != nil {
		return err
	}

	loop := sched.NewLoop(eng.Scheduler, 10*time.Millisecond)
	srv.Bind(loop, eng.Session, rec, ss.Backlog)
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	var startErr error
	if err := loop.Do(ctx, func() { startErr = eng.Session.Start(ch) }); err != nil {
		loop.Stop()
		<-loopDone
		return err
	}
	if startErr != nil {
		loop.Stop()
		<-loopDone
		return startErr
	}

	err = srv.Run(ctx)
	_ = loop.Do(context.Background(), eng.Session.Close)
	loop.Stop()
	if lerr := <-loopDone; err == nil {
		err = lerr
	}
	return err
}
