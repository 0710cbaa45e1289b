package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chitchat-ai/chitchat/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start chitchat as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []mcp.Option{mcp.WithLogger(a.logger)}
			if c := a.dispatcher.Cache(); c != nil {
				opts = append(opts, mcp.WithCache(c))
			}
			if a.history != nil {
				opts = append(opts, mcp.WithHistory(a.history))
			}
			srv := mcp.New(a.analyzer, a.cfg, version, opts...)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
