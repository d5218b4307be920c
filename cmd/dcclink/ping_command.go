package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dcclink/config"
)

func newPingCommand(cfg *config.Config) *cobra.Command {
	var appFlag string
	var portFlag int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check whether a command server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient(cfg, appFlag, portFlag)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			if !c.Ping() {
				return fmt.Errorf("no reply from port %d", c.Port())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong from port %d\n", c.Port())
			return nil
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "Target application (defaults to probing all known ports)")
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Target port (overrides --app)")

	return cmd
}
