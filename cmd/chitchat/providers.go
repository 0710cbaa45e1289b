package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chitchat-ai/chitchat/pkg/config"
)

func newProvidersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTIVE\tID\tMODEL\tMAX TOKENS\tTEMP\tTIMEOUT\tAPI KEY\tURL")
			for _, p := range cfg.Providers {
				active := ""
				if p.ID == cfg.Provider {
					active = "*"
				}
				key := "-"
				if p.APIKey != "" {
					key = "set"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\t%s\t%s\n",
					active, p.ID, p.Model, p.MaxOutputTokens, p.Temperature, p.Timeout, key, p.URL)
			}
			return w.Flush()
		},
	}
}
