package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/pidfile"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether scribe is running and how it is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			pf, err := pidfile.Default()
			if err != nil {
				return err
			}
			running, pid, err := pf.IsRunning()
			if err != nil {
				return err
			}
			if running {
				fmt.Fprintf(out, "Scribe is running (PID %d)\n", pid)
			} else {
				fmt.Fprintln(out, "Scribe is not running")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Fprintf(out, "Config: unavailable (%v)\n", err)
				return nil
			}

			var st *store.Store
			if s, err := store.Open(cfg.Database.Path); err == nil {
				st = s
				defer st.Close()
			}

			var opts []scribe.HealthOption
			if live {
				opts = append(opts, scribe.ConnectionCheck(cfg))
			}
			printHealth(out, scribe.CheckHealth(cmd.Context(), cfg, st, nil, opts...))
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Call the transcription and summarization APIs to verify the keys")
	return cmd
}

func printHealth(out io.Writer, h scribe.Health) {
	fmt.Fprintf(out, "Healthy:       %s\n", yesNo(h.Healthy))
	fmt.Fprintf(out, "Transcription: %s\n", connection(h.Connections.Transcription, h.Connections.Checked))
	fmt.Fprintf(out, "Summarization: %s\n", connection(h.Connections.Summarization, h.Connections.Checked))
	fmt.Fprintf(out, "Database:      %s\n", yesNo(h.Database))

	keys := make([]string, 0, len(h.Folders))
	for k := range h.Folders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out, "Folders:")
	for _, k := range keys {
		state := "ok"
		if !h.Folders[k] {
			state = "not writable"
		}
		fmt.Fprintf(out, "  %-10s %s\n", k, state)
	}

	if h.Stats != nil {
		fmt.Fprintf(out, "Jobs:          %d total, %d today, %.0f%% success\n",
			h.Stats.Total, h.Stats.Today, h.Stats.SuccessRate*100)
	}

	if len(h.Problems) > 0 {
		fmt.Fprintln(out, "Problems:")
		for _, p := range h.Problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func connection(ok, checked bool) string {
	switch {
	case ok && checked:
		return "connected"
	case ok:
		return "configured"
	case checked:
		return "unavailable"
	default:
		return "not configured"
	}
}
