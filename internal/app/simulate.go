package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
	"token-alerts/internal/notify"
)

// SimulateAlert 构造一条样例告警并直接发送给指定 chat，用于检查展示格式与 bot 配置。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.ChatID == "" {
		return errors.New("chat id is required")
	}
	eventType, ok := domain.ParseEventType(opts.EventType)
	if !ok {
		return fmt.Errorf("unknown event type %q", opts.EventType)
	}

	msg := domain.NotificationMessage{EventType: eventType, Token: sampleToken()}
	text := notify.Format(opts.Preference, msg)

	if err := a.newSender(nil).Send(ctx, opts.ChatID, text); err != nil {
		return fmt.Errorf("send simulated alert: %w", err)
	}
	a.Logger.Info().Str("chat_id", opts.ChatID).Str("event_type", string(eventType)).Msg("模拟告警已发送")
	return nil
}

func sampleToken() domain.Token {
	verified := true
	decimals := uint8(18)
	buyTax := decimal.NewFromInt(1)
	sellTax := decimal.RequireFromString("2.5")
	locked := decimal.RequireFromString("85.4")
	return domain.Token{
		Address:          "0x6982508145454Ce325dDbE47a25d4ec3d2311933",
		Blockchain:       "Ethereum",
		ChainID:          "0x1",
		Name:             "Simulated Frog",
		Symbol:           "SFROG",
		Decimals:         &decimals,
		TotalSupply:      "420690000000000000000000000000000",
		ContractVerified: &verified,
		Socials: domain.Socials{
			Website:  "https://example.org",
			Twitter:  "https://x.com/example",
			Telegram: "https://t.me/example",
		},
		RiskLevel:      domain.RiskLow,
		BuyTax:         &buyTax,
		SellTax:        &sellTax,
		IsRenounced:    true,
		Classification: "Memecoins",
		DexPair:        "0xA43fe16908251ee70EF74718545e4FE6C5cCEc9f",
		LockedLP:       &locked,
	}
}
