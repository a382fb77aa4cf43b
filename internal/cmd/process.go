package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Process one recording now",
		Long: `Run a single recording through the pipeline and wait for the result.

The file is transcribed, summarized, named and written to the output folder,
then moved to the processed folder. No stability wait is applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return fmt.Errorf("%s is not a regular file", path)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := scribe.Open(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			job, err := app.Service.Submit(cmd.Context(), path)
			if err != nil {
				if job != nil {
					return fmt.Errorf("job %d failed: %w", job.ID, err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if job.Status != store.StatusCompleted {
				return fmt.Errorf("job %d failed: %s", job.ID, job.ErrorMessage)
			}
			fmt.Fprintf(out, "Job %d completed\n", job.ID)
			fmt.Fprintf(out, "Output: %s\n", job.OutputPath)
			return nil
		},
	}
}
