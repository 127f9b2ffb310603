package main

import "github.com/spf13/cobra"

func newRootCommand() *cobra.Command {
	ctx := &commandContext{flag: new(string)}

	root := &cobra.Command{
		Use:           "mediapipe",
		Short:         "Inspect and operate the media pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVarP(ctx.flag, "config", "c", "", "Configuration file path")
	root.AddCommand(
		newConfigCommand(ctx),
		newFilesCommand(ctx),
		newPreflightCommand(ctx),
		newDeadLetterCommand(ctx),
		newDaemonCommand(ctx),
	)
	return root
}
