package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/free4inno/intent-hub/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, manager, err := bootstrap(ctx, log)
		if err != nil {
			return err
		}

		// converge the index with whatever the journal holds; the pass runs in
		// the background while the server starts accepting traffic
		manager.TriggerSync()

		srv := server.New(log, manager)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		return srv.Start(ctx, addr)
	},
}
