package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmx/rwa-engine/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "rwa-engine",
		Short: "Real-world asset tokenization, AMM and automation engine",
		Long: `rwa-engine tokenizes off-chain assets listed on investment platforms,
trades them through constant-product pools, tracks cross-platform prices,
and executes delegated trades on behalf of users.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (port %d, journal %s)\n", cfg.Server.Port, journalKind(cfg))
			return nil
		},
	})
	rootCmd.AddCommand(configCmd)

	return rootCmd
}

func journalKind(cfg *config.Config) string {
	switch {
	case cfg.Database.URL == "":
		return "memory"
	case cfg.Redis.URL != "":
		return "postgres+redis"
	default:
		return "postgres"
	}
}
