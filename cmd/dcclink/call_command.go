package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dcclink/config"
)

func newCallCommand(cfg *config.Config) *cobra.Command {
	var appFlag string
	var portFlag int
	var kwargsFlag string

	cmd := &cobra.Command{
		Use:   "call <command> [args...]",
		Short: "Invoke a command on a running server and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kwargs map[string]any
			if kwargsFlag != "" {
				if err := json.Unmarshal([]byte(kwargsFlag), &kwargs); err != nil {
					return fmt.Errorf("parse kwargs: %w", err)
				}
			}

			var positional []any
			for _, a := range args[1:] {
				positional = append(positional, a)
			}

			c, err := dialClient(cfg, appFlag, portFlag)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			result, err := c.Invoke(args[0], positional, kwargs)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "Target application (defaults to probing all known ports)")
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Target port (overrides --app)")
	cmd.Flags().StringVarP(&kwargsFlag, "kwargs", "k", "", "Keyword arguments as a JSON object")

	return cmd
}
