// Package cmd implements the complai command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "complai",
	Short: "Compliance assistant backend",
	Long: `complai is a conversational compliance assistant backed by a
retrieval-augmented knowledge base of regulatory documents.

Run "complai serve" to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
