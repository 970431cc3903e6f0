package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chative-food/server/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat and admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		runner, err := a.runner(ctx)
		if err != nil {
			return err
		}

		srv := server.New(cfg.Server, server.Deps{
			Runner: runner,
			Store:  a.store,
			Drafts: a.drafts,
		})
		return srv.Run(ctx)
	},
}
