package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configx "github.com/attachehq/attache/pkg/config"
	serverx "github.com/attachehq/attache/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := configx.New[serverx.Config]("SERVER")
			if err != nil {
				return err
			}
			var opts []serverx.Option
			if a.store != nil {
				opts = append(opts, serverx.WithWebhook(a.store, a.verifyToken))
			}
			srv, err := serverx.New(*cfg, a.dispatcher, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}
