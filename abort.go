package main

import (
	"github.com/spf13/cobra"
)

func newAbortCmd() *cobra.Command {
	var (
		appFlag string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "abort <build-slug>",
		Short: "Abort a running build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			client, err := apiClient()
			if err != nil {
				return err
			}

			if err := client.AbortBuild(cmd.Context(), appSlug, args[0], reason); err != nil {
				return err
			}

			statusf("Build %s aborted\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&reason, "reason", "", "abort reason shown on the build page")

	return cmd
}
