package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/vault"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Initialize a vault for scribe",
		Long: `Initialize a vault in the current directory with the specified name.

Creates the inbox folders scribe watches and writes a starter
.nota/scribe.yaml. Running init in an existing vault only adds what is missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := cmd.OutOrStdout()

			result, err := vault.Init(".", name, scribe.InboxFolders...)
			if err != nil {
				return err
			}

			if result.AlreadyExisted {
				if len(result.FoldersCreated) > 0 {
					fmt.Fprintf(out, "Vault already initialized. Created missing folders: %v\n", result.FoldersCreated)
				} else {
					fmt.Fprintf(out, "Vault already initialized\n")
				}
			} else {
				fmt.Fprintf(out, "Initialized vault '%s'\n", name)
			}

			if err := os.MkdirAll(filepath.Join(vault.VaultMarkerDir, "prompts"), 0755); err != nil {
				return fmt.Errorf("create prompts directory: %w", err)
			}

			written, err := scribe.WriteDefault(".")
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if written {
				fmt.Fprintf(out, "Wrote %s\n", scribe.ConfigPath("."))
			}
			return nil
		},
	}
}
