package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewJobsCmd creates the jobs command group
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect processing jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.JobFilter{Status: store.Status(status), Limit: limit, Offset: offset}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			_, st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, total, err := st.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tFILE\tNAME")
			for _, j := range jobs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					j.ID, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04"), j.Filename, j.FinalFilename)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nShowing %d of %d\n", len(jobs), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show jobs in this status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultJobLimit, "maximum number of jobs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func newJobsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			_, st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			job, err := st.GetJob(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("job %d not found", id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			}
			printJob(out, job)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job as JSON")
	return cmd
}

func printJob(out io.Writer, j *store.Job) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", j.ID)
	fmt.Fprintf(w, "File:\t%s\n", j.Filename)
	fmt.Fprintf(w, "Source:\t%s\n", j.SourcePath)
	fmt.Fprintf(w, "Status:\t%s\n", j.Status)
	fmt.Fprintf(w, "Created:\t%s\n", formatTime(&j.CreatedAt))
	fmt.Fprintf(w, "Started:\t%s\n", formatTime(j.StartedAt))
	fmt.Fprintf(w, "Completed:\t%s\n", formatTime(j.CompletedAt))
	if j.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", j.ErrorMessage)
	}
	if j.TranscriptLength != nil {
		fmt.Fprintf(w, "Transcript:\t%d chars\n", *j.TranscriptLength)
	}
	if j.OutputPath != "" {
		fmt.Fprintf(w, "Output:\t%s\n", j.OutputPath)
	}
	if j.FinalFilename != "" {
		fmt.Fprintf(w, "Name:\t%s\n", j.FinalFilename)
	}
	if j.SuggestedFilename != "" && j.SuggestedFilename != j.FinalFilename {
		fmt.Fprintf(w, "Suggested:\t%s\n", j.SuggestedFilename)
	}
	if j.NamingConfidence != nil {
		fmt.Fprintf(w, "Confidence:\t%.2f\n", *j.NamingConfidence)
	}
	w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
