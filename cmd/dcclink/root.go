package main

import (
	"github.com/spf13/cobra"

	"dcclink/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cfg := new(config.Config)
	*cfg = config.Default()

	rootCmd := &cobra.Command{
		Use:           "dcclink",
		Short:         "Remote control bridge for content-creation hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configFlag
			if path == "" {
				path = config.DefaultFile
			}
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			*cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(cfg))
	rootCmd.AddCommand(newPingCommand(cfg))
	rootCmd.AddCommand(newCallCommand(cfg))
	rootCmd.AddCommand(newAppsCommand(cfg))

	return rootCmd
}
