package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

const configFlag = "config"

// loadConfig reads the file named by --config, or the current vault's config.
func loadConfig(cmd *cobra.Command) (*scribe.Config, error) {
	path, _ := cmd.Flags().GetString(configFlag)
	if path == "" {
		cfg, err := scribe.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := scribe.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the job database named by the config.
func openStore(cmd *cobra.Command) (*scribe.Config, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open job store: %w", err)
	}
	return cfg, st, nil
}
