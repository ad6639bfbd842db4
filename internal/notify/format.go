package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

const (
	DisplayStandard = "standard"
	DisplayCompact  = "compact"
)

var titles = map[domain.EventType]string{
	domain.EventNewToken:           "🚀 New Token Deployed",
	domain.EventNewPair:            "💧 New DEX Listing",
	domain.EventLockLP:             "🔒 Liquidity Locked",
	domain.EventOwnershipRenounced: "🗝 Ownership Renounced",
}

var explorers = map[string]string{
	"Ethereum":        "https://etherscan.io",
	"Sepolia Testnet": "https://sepolia.etherscan.io",
}

// Format renders msg as Telegram HTML. Unknown preferences fall back to standard.
func Format(preference string, msg domain.NotificationMessage) string {
	if strings.EqualFold(strings.TrimSpace(preference), DisplayCompact) {
		return formatCompact(msg)
	}
	return formatStandard(msg)
}

func formatStandard(msg domain.NotificationMessage) string {
	tok := msg.Token
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>%s</b>\n\n", title(msg.EventType)))
	builder.WriteString(fmt.Sprintf("<b>%s</b> (%s)\n", esc(orDash(tok.Name)), esc(orDash(tok.Symbol))))
	builder.WriteString(fmt.Sprintf("Chain: %s\n", esc(orDash(tok.Blockchain))))
	builder.WriteString(fmt.Sprintf("Address: <code>%s</code>\n", esc(tok.Address)))
	if tok.DexPair != "" {
		builder.WriteString(fmt.Sprintf("Pair: <code>%s</code>\n", esc(tok.DexPair)))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Risk: %s\n", esc(orDash(string(tok.RiskLevel)))))
	builder.WriteString(fmt.Sprintf("Tax: buy %s / sell %s\n", percent(tok.BuyTax), percent(tok.SellTax)))
	builder.WriteString(fmt.Sprintf("Verified: %s\n", yesNo(tok.Verified())))
	builder.WriteString(fmt.Sprintf("Renounced: %s\n", yesNo(tok.IsRenounced)))
	if tok.LockedLP != nil {
		builder.WriteString(fmt.Sprintf("Locked LP: %s\n", percent(tok.LockedLP)))
	}
	if tok.Classification != "" {
		builder.WriteString(fmt.Sprintf("Category: %s\n", esc(tok.Classification)))
	}
	if links := socialLinks(tok.Socials); links != "" {
		builder.WriteString("\n")
		builder.WriteString(links)
		builder.WriteString("\n")
	}
	if link := explorerLink(tok); link != "" {
		builder.WriteString("\n")
		builder.WriteString(link)
	}
	return strings.TrimRight(builder.String(), "\n")
}

func formatCompact(msg domain.NotificationMessage) string {
	tok := msg.Token
	parts := []string{
		fmt.Sprintf("<b>%s</b> %s (%s)", title(msg.EventType), esc(orDash(tok.Name)), esc(orDash(tok.Symbol))),
		fmt.Sprintf("<code>%s</code>", esc(tok.Address)),
		fmt.Sprintf("Risk %s | Tax %s/%s", esc(orDash(string(tok.RiskLevel))), percent(tok.BuyTax), percent(tok.SellTax)),
	}
	if tok.LockedLP != nil {
		parts = append(parts, fmt.Sprintf("LP locked %s", percent(tok.LockedLP)))
	}
	if link := explorerLink(tok); link != "" {
		parts = append(parts, link)
	}
	return strings.Join(parts, "\n")
}

func title(t domain.EventType) string {
	if s, ok := titles[t]; ok {
		return s
	}
	return "Token Alert"
}

func socialLinks(s domain.Socials) string {
	var links []string
	add := func(label, url string) {
		if url != "" {
			links = append(links, fmt.Sprintf(`<a href="%s">%s</a>`, esc(url), label))
		}
	}
	add("Website", s.Website)
	add("Twitter", s.Twitter)
	add("Telegram", s.Telegram)
	add("Discord", s.Discord)
	return strings.Join(links, " | ")
}

func explorerLink(tok domain.Token) string {
	base, ok := explorers[tok.Blockchain]
	if !ok || tok.Address == "" {
		return ""
	}
	return fmt.Sprintf(`<a href="%s/token/%s">Explorer</a>`, base, esc(tok.Address))
}

func percent(d *decimal.Decimal) string {
	if d == nil {
		return "?"
	}
	return d.Round(2).String() + "%"
}

func yesNo(v bool) string {
	if v {
		return "✅"
	}
	return "❌"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func esc(s string) string {
	return html.EscapeString(s)
}
