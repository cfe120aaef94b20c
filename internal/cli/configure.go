package cli

import (
	"fmt"

	"github.com/harun/mnemo/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the default configuration file",
	Long: `Write a configuration file with the default settings so it can be edited
by hand. An existing file is left untouched unless --force is given.`,
	RunE: runConfigure,
}

var configureForce bool

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	existing, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := existing
	if configureForce {
		cfg = config.DefaultConfig()
		cfg.DataDir = existing.DataDir
		cfg.DBPath = existing.DBPath
		cfg.Embedding.CacheDir = existing.Embedding.CacheDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "Start the server with: mnemo serve")
	return nil
}
