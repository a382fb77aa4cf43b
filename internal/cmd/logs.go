package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewLogsCmd creates the logs command
func NewLogsCmd() *cobra.Command {
	var (
		jobID int64
		level string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recorded log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.LogFilter{Level: level, Limit: limit}
			if jobID > 0 {
				filter.JobID = &jobID
			}

			_, st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListLogs(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No log entries")
				return nil
			}
			for _, e := range entries {
				job := ""
				if e.JobID != nil {
					job = fmt.Sprintf(" [job %d]", *e.JobID)
				}
				fmt.Fprintf(out, "%s %-5s%s %s\n", e.Timestamp.Local().Format(time.DateTime), e.Level, job, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "job", 0, "only show entries for this job")
	cmd.Flags().StringVar(&level, "level", "", "only show entries at this level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultLogLimit, "maximum number of entries to show")
	return cmd
}
