package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Bulk email campaign service",
	Long:  "A campaign service that accepts CSV recipient lists over HTTP and delivers emails one at a time, streamed live or through a background queue.",
}

// Execute runs the root Cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
