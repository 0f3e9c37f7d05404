package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbaille/codecontext/internal/api"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/watch"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.New(s, api.Options{
				DefaultLimit:   a.cfg.Search.DefaultLimit,
				RecentActivity: a.cfg.Status.RecentActivity,
				Logger:         a.log.Component("api"),
			})
			cmd.Printf("Serving on http://%s\n", addr)
			return server.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config)")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-scan the project whenever its files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sc, err := a.scanner()
			if err != nil {
				return err
			}
			log := a.log.Component("watch")

			rescan := func(ctx context.Context, changes []watch.Event) error {
				removed := 0
				for _, c := range changes {
					if c.Gone() {
						removed++
					}
				}
				res, err := sc.Scan(ctx)
				if err != nil {
					return err
				}
				progress, err := ingest.Scan(ctx, s, *res)
				log.Info().
					Int("changed", len(changes)).
					Int("removed", removed).
					Int("files", progress.Files).
					Int("patterns", progress.Patterns).
					Msg("rescanned")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rescan(ctx, nil); err != nil {
				return err
			}

			w, err := watch.New(sc, watch.Options{
				Debounce: a.cfg.Watch.Debounce,
				Logger:   log,
			}, rescan)
			if err != nil {
				return err
			}
			cmd.Printf("Watching %s (Ctrl-C to stop)\n", a.root)
			return w.Run(ctx)
		},
	}
	return cmd
}
