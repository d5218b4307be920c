package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dcclink/config"
	"dcclink/dcc"
	"dcclink/server"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	var appFlag string
	var portFlag int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a standalone command server with the echo executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			host := dcc.Detect()
			if appFlag != "" {
				app := dcc.App(appFlag)
				if !dcc.Valid(app) && app != dcc.Standalone {
					return fmt.Errorf("unknown application %q", appFlag)
				}
				host.App = app
			}

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithBasePort(cfg.BasePort),
				server.WithExecutor(&server.EchoExecutor{}),
			}
			if portFlag > 0 {
				opts = append(opts, server.WithPort(portFlag))
			}
			srv := server.New(host, opts...)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve()
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				logger.Info("shutting down", "signal", s.String())
				return srv.Shutdown(5 * time.Second)
			}
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "Application identity to serve as (defaults to autodetect)")
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Listen port (defaults to the application's derived port)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}
