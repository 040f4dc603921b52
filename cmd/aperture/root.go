package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "aperture",
	Short: "Aperture - credential-pooling gateway for generative APIs",
	Long: `Aperture is a reverse-proxy gateway for Gemini-style generative APIs.

It manages a rotating pool of upstream API credentials, caches completed
responses, collapses concurrent identical requests onto a single upstream
call, and applies per-client rate limits at admission.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
