package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop the cached subscriber filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ClearCache(cmd.Context())
	},
}
