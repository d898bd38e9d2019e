// Package main provides convertctl, a command-line client for a convertd
// server: submit files for conversion and check job status.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "convertctl",
	Short: "Client for the convertd document conversion service",
	Long: `convertctl submits PDFs and images to a convertd server and retrieves
conversion results. Uploads go directly to the object store via presigned
URLs; the server only brokers credentials and tracks job state.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8082", "convertd server base URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
