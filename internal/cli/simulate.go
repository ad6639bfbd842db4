package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"token-alerts/internal/app"
)

var (
	simulateChatID     string
	simulateEventType  string
	simulatePreference string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "发送一条样例告警到指定 chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChatID == "" {
			return errors.New("--chat 不能为空")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			ChatID:     simulateChatID,
			EventType:  simulateEventType,
			Preference: simulatePreference,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChatID, "chat", "", "目标 Telegram chat id")
	simulateCmd.Flags().StringVar(&simulateEventType, "event", "new_pair", "事件类型 (new_token, new_pair, lock_lp)")
	simulateCmd.Flags().StringVar(&simulatePreference, "display", "standard", "展示格式 (standard, compact)")
}
