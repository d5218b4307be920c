package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dcclink/config"
	"dcclink/dcc"
)

func newAppsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the supported applications and their port layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "APP\tNAME\tPORT\tCALLBACK")
			fmt.Fprintf(w, "%s\t%s\t%d\t-\n", dcc.Standalone, "Standalone", cfg.BasePort)
			for _, app := range dcc.All {
				port := dcc.Port(cfg.BasePort, app)
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", app, dcc.NiceNames[app], port, dcc.CallbackPort(port))
			}
			return w.Flush()
		},
	}
	return cmd
}
