package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailpeek application
var rootCmd = &cobra.Command{
	Use:   "mailpeek",
	Short: "Gmail triage API with LLM-based classification",
	Long: `mailpeek is an HTTP service that authenticates a user against Google
via OAuth2, stores the OAuth tokens encrypted at rest in PostgreSQL, lists
recent Gmail messages with a single batched API round trip and annotates
each message with an LLM-derived category and priority score.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailpeek version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
