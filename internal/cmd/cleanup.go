package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCleanupCmd creates the cleanup command
func NewCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old jobs and their log entries",
		Long: `Delete jobs created more than --days days ago, together with their log
entries. Defaults to retention.job_days from the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if !cmd.Flags().Changed("days") {
				days = cfg.Retention.JobDays
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}

			cutoff := time.Now().AddDate(0, 0, -days)
			n, err := st.DeleteJobsBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs older than %d days\n", n, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "remove jobs older than this many days")
	return cmd
}
