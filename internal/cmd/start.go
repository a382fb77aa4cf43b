package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/pidfile"
)

// NewStartCmd creates the start command
func NewStartCmd() *cobra.Command {
	var (
		console bool
		noWeb   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the watcher and web API in the foreground",
		Long: `Start scribe in foreground mode.

Watches the configured folder for recordings, processes each one once it
stops growing, and serves the status API. Configuration is read from
.nota/scribe.yaml in the current vault.

Runs until interrupted with Ctrl+C or SIGTERM. In-flight recordings are
allowed to finish before exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pf, err := pidfile.Default()
			if err != nil {
				return err
			}
			if err := pf.Acquire(); err != nil {
				return err
			}
			defer pf.Remove()

			var opts []scribe.AppOption
			if console {
				opts = append(opts, scribe.WithConsole())
			}
			app, err := scribe.Open(cfg, opts...)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Starting scribe...")
			fmt.Fprintf(out, "Watching: %s\n", cfg.Processing.WatchFolder)
			fmt.Fprintf(out, "Output:   %s\n", cfg.Processing.OutputFolder)
			fmt.Fprintf(out, "Logs:     %s\n", app.LogPath())
			if app.Processor == nil {
				fmt.Fprintln(out, "Warning: pipeline not configured, recordings will not be processed")
			}
			fmt.Fprintln(out, "Press Ctrl+C to stop")
			fmt.Fprintln(out)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, app, noWeb, out)
		},
	}

	cmd.Flags().BoolVar(&console, "console", false, "mirror log output to stderr")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "do not serve the web API")
	return cmd
}

// run drives the service and the API until ctx is cancelled. The API is
// optional: a bind or serve failure is logged and the watcher keeps running.
func run(ctx context.Context, app *scribe.App, noWeb bool, out io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Service.Run(gctx)
	})

	if !noWeb {
		cfg := app.Config
		ln, err := api.Listen(cfg.Web.Host, cfg.Web.Port, cfg.ListenAttempts())
		if err != nil {
			app.Logger.Error("web api unavailable, continuing without it", err)
			fmt.Fprintf(out, "Warning: web API unavailable: %v\n", err)
		} else {
			fmt.Fprintf(out, "API:      http://%s\n", ln.Addr())
			router := api.NewRouter(api.NewDependencies(cfg, app.Store, app.Service, app.Logger))
			g.Go(func() error {
				if err := api.ServeListener(gctx, ln, router, app.Logger); err != nil {
					app.Logger.Error("web api stopped", err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
