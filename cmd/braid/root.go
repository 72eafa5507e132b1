package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kode4food/braid/internal/config"
)

const configFlag = "config"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "braid",
		Short: "braid is a durable orchestration engine",
		Long: `braid replays orchestration functions against an append-only history so that fan-out/fan-in computations survive restarts and complete exactly once.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String(configFlag, os.Getenv("CONFIG_FILE"),
		"YAML configuration file",
	)

	root.AddCommand(newServeCmd(), newRunCmd(), newVersionCmd())
	return root
}

// loadConfig applies defaults, then the configuration file, then the
// environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if path, _ := cmd.Flags().GetString(configFlag); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
