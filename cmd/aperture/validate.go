package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sundial-hq/aperture/pkg/config"
	"sundial-hq/aperture/pkg/keypool"
)

var validateFlags struct {
	showKeys bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting the gateway.

The command checks the configuration schema, the listen address, the
upstream endpoint settings and the credential list, and reports every
problem found.

Examples:
  # Validate the default config
  aperture validate

  # Validate a specific config and list its credentials (redacted)
  aperture validate --config /etc/aperture/config.yaml --show-keys`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.showKeys, "show-keys", false, "list configured credentials (redacted)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration valid: %s\n", cfgFile)
	fmt.Printf("  listen address:   %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  default endpoint: %s\n", cfg.Upstream.DefaultEndpoint)
	fmt.Printf("  credentials:      %d\n", len(cfg.Credentials.Keys))
	fmt.Printf("  settings backend: %s\n", cfg.Settings.Backend)

	if validateFlags.showKeys {
		for _, key := range cfg.Credentials.Keys {
			fmt.Printf("    %s\n", keypool.Redact(key))
		}
	}

	return nil
}
