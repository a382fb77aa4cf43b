package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the scribe CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "Watched-folder audio transcription and summarization",
		Long: `Scribe watches a folder for audio recordings, transcribes them, writes an
AI summary with a descriptive filename into the vault inbox, and files the
recording away.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String(configFlag, "", "path to scribe.yaml (default: <vault>/.nota/scribe.yaml)")

	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewStopCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewJobsCmd())
	rootCmd.AddCommand(NewLogsCmd())
	rootCmd.AddCommand(NewCleanupCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
