package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var (
		providerID string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [prompt...]",
		Short: "Rate a prompt, suggest improvements and rewrite it",
		Long:  "Rate a prompt, suggest improvements and rewrite it. The prompt is read from stdin when no arguments (or \"-\") are given.",
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
			result, err := a.analyzer.Analyze(cmd.Context(), prompt, pcfg)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printAnalysis(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "provider to use (ollama, google, openai, claude)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	return cmd
}

func printAnalysis(w io.Writer, a models.Analysis) {
	fmt.Fprintf(w, "Strength:    %s\n", strings.ToUpper(string(a.Rating)))
	fmt.Fprintln(w, "Suggestions:")
	for _, s := range a.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	fmt.Fprintf(w, "\nImproved prompt:\n%s\n", a.Rewrite)
}
