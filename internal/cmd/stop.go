package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/pidfile"
)

// stopTimeout is the maximum time to wait for graceful shutdown before sending SIGKILL
const stopTimeout = 10 * time.Second

// NewStopCmd creates the stop command
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running scribe process",
		Long: `Stop the running scribe process.

Reads the PID from ~/.nota/scribe.pid and sends SIGTERM for graceful shutdown.
If the process doesn't exit within 10 seconds, SIGKILL is sent to force termination.
The PID file is removed after the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := pidfile.Default()
			if err != nil {
				return err
			}
			return runStop(cmd, pf)
		},
	}
}

func runStop(cmd *cobra.Command, pf *pidfile.File) error {
	out := cmd.OutOrStdout()

	running, pid, err := pf.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		if pid != 0 {
			if err := pf.Remove(); err != nil {
				fmt.Fprintf(out, "Warning: failed to remove stale PID file: %v\n", err)
			}
			fmt.Fprintf(out, "Scribe is not running (removed stale PID file for %d)\n", pid)
			return nil
		}
		fmt.Fprintln(out, "Scribe is not running")
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Fprintf(out, "Stopping scribe (PID %d)...\n", pid)

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	if !waitForExit(pid, stopTimeout) {
		fmt.Fprintln(out, "Process did not exit gracefully, sending SIGKILL...")
		if err := process.Signal(syscall.SIGKILL); err != nil {
			// Process may have exited between check and kill
			if !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("send SIGKILL: %w", err)
			}
		}
		waitForExit(pid, 2*time.Second)
	}

	if err := pf.Remove(); err != nil {
		fmt.Fprintf(out, "Warning: failed to remove PID file: %v\n", err)
	}

	fmt.Fprintln(out, "Scribe stopped")
	return nil
}

// waitForExit polls until the process exits or timeout is reached
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	pollInterval := 100 * time.Millisecond

	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			return true
		}
		time.Sleep(pollInterval)
	}

	return false
}
