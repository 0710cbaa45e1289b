package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chitchat-ai/chitchat/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API used by the browser overlay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Listen = listen
			}

			opts := []server.Option{server.WithLogger(a.logger)}
			if h := a.telemetry.Handler(); h != nil {
				opts = append(opts, server.WithMetricsHandler(h))
			}
			srv := server.New(a.cfg, a.analyzer, a.dispatcher, opts...)

			a.logger.Info().
				Str("provider", string(a.cfg.Provider)).
				Bool("cache", a.cfg.Cache.Enabled).
				Bool("history", a.cfg.History.Enabled).
				Msg("starting chitchat server")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
