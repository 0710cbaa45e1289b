package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAskCmd(configPath *string) *cobra.Command {
	var (
		providerID string
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send a prompt to the provider as-is and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			pcfg, err := a.provider(providerID)
			if err != nil {
				return err
			}
			text, err := a.dispatcher.Dispatch(cmd.Context(), prompt, pcfg, a.cfg.Cache.Enabled && !noCache)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "provider to use (ollama, google, openai, claude)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	return cmd
}
