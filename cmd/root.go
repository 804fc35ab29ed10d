// Package cmd implements the parallax command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parallax",
	Short: "Parallax - technical assistant chat backend",
	Long: `Parallax is the backend for a technical-assistant chatbot.

It serves a REST/SSE API that persists conversations in PostgreSQL and
streams assistant replies from an upstream LLM provider. Each conversation
carries one of seven selectable modes that shape the assistant's stance.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main().
func Execute() error {
	return rootCmd.Execute()
}
