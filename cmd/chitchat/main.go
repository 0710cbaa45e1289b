package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "chitchat",
		Short:         "chitchat: rate, critique and rewrite LLM prompts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to chitchat config file (defaults built in)")

	root.AddCommand(
		newAnalyzeCmd(&configPath),
		newAskCmd(&configPath),
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
		newProvidersCmd(&configPath),
		newHistoryCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
