package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run gateway, worker and notifier in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the enrichment worker loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Work(cmd.Context())
	},
}

var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Run the notification fanout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Notify(cmd.Context())
	},
}
