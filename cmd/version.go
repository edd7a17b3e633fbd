package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version subcommand
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of mailpeek",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mailpeek version %s\n", version)
		},
	}
}
