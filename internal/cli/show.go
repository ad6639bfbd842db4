package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"token-alerts/internal/app"
)

var (
	showLimit   int
	replayLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display queue depths and dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Move dead letters back onto the work queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Replay(cmd.Context(), replayLimit)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of dead letters to display")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "Maximum number of dead letters to replay")
}
