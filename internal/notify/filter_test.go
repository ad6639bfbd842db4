package notify

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-alerts/internal/domain"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleMessage(eventType domain.EventType) domain.NotificationMessage {
	verified := true
	return domain.NotificationMessage{
		EventType: eventType,
		Token: domain.Token{
			Address:          "0x1111111111111111111111111111111111111111",
			Blockchain:       "Ethereum",
			Name:             "Pepe Frog",
			Symbol:           "PEPE",
			ContractVerified: &verified,
			Socials:          domain.Socials{Telegram: "https://t.me/pepe"},
			RiskLevel:        domain.RiskLow,
			BuyTax:           dec("3"),
			SellTax:          dec("5"),
			Classification:   "Memecoins",
			LockedLP:         dec("5"),
		},
	}
}

func TestEmptyFilterMatchesAnything(t *testing.T) {
	for _, et := range []domain.EventType{domain.EventNewToken, domain.EventNewPair, domain.EventLockLP} {
		assert.True(t, ApplyFilters(domain.SubscriberFilter{}, sampleMessage(et)), et)
	}
	assert.True(t, ApplyFilters(domain.SubscriberFilter{}, domain.NotificationMessage{}))
}

func TestLockedLPFloor(t *testing.T) {
	f := domain.SubscriberFilter{LockedLP: "10"}

	assert.False(t, ApplyFilters(f, sampleMessage(domain.EventNewPair)))
	assert.False(t, ApplyFilters(f, sampleMessage(domain.EventLockLP)))
	assert.True(t, ApplyFilters(f, sampleMessage(domain.EventNewToken)), "no LP exists for new tokens")

	f.AlertType = "New TGE"
	assert.False(t, ApplyFilters(f, sampleMessage(domain.EventNewPair)), "alert type still excludes dex events")
	assert.True(t, ApplyFilters(f, sampleMessage(domain.EventNewToken)))

	msg := sampleMessage(domain.EventLockLP)
	msg.Token.LockedLP = dec("10")
	assert.True(t, ApplyFilters(domain.SubscriberFilter{LockedLP: "10%"}, msg))

	msg.Token.LockedLP = nil
	assert.False(t, ApplyFilters(domain.SubscriberFilter{LockedLP: "1"}, msg), "unknown lock counts as zero")
}

func TestFilterChecks(t *testing.T) {
	cases := []struct {
		name   string
		filter domain.SubscriberFilter
		event  domain.EventType
		mutate func(*domain.Token)
		want   bool
	}{
		{name: "blockchain allowed", filter: domain.SubscriberFilter{Blockchains: []string{"ethereum"}}, want: true},
		{name: "blockchain denied", filter: domain.SubscriberFilter{Blockchains: []string{"Sepolia Testnet"}}, want: false},
		{name: "social required and present", filter: domain.SubscriberFilter{HasSocial: true}, want: true},
		{name: "social required and missing", filter: domain.SubscriberFilter{HasSocial: true},
			mutate: func(tok *domain.Token) { tok.Socials = domain.Socials{} }, want: false},
		{name: "alert all", filter: domain.SubscriberFilter{AlertType: "all"}, event: domain.EventLockLP, want: true},
		{name: "dex listing covers new_pair", filter: domain.SubscriberFilter{AlertType: "new dex listing"}, event: domain.EventNewPair, want: true},
		{name: "dex listing covers lock_lp", filter: domain.SubscriberFilter{AlertType: "new dex listing"}, event: domain.EventLockLP, want: true},
		{name: "dex listing excludes new_token", filter: domain.SubscriberFilter{AlertType: "new dex listing"}, event: domain.EventNewToken, want: false},
		{name: "new tge excludes new_pair", filter: domain.SubscriberFilter{AlertType: "new tge"}, event: domain.EventNewPair, want: false},
		{name: "unknown alert type", filter: domain.SubscriberFilter{AlertType: "airdrops"}, want: false},
		{name: "classification all", filter: domain.SubscriberFilter{Classification: "All"}, want: true},
		{name: "classification equal", filter: domain.SubscriberFilter{Classification: "memecoins"}, want: true},
		{name: "classification other", filter: domain.SubscriberFilter{Classification: "AI"}, want: false},
		{name: "exclude memecoins", filter: domain.SubscriberFilter{Classification: "Exclude Memecoins"}, want: false},
		{name: "exclude memecoins passes defi", filter: domain.SubscriberFilter{Classification: "exclude memecoins"},
			mutate: func(tok *domain.Token) { tok.Classification = "DeFi" }, want: true},
		{name: "verified required", filter: domain.SubscriberFilter{ContractVerified: true},
			mutate: func(tok *domain.Token) { tok.ContractVerified = nil }, want: false},
		{name: "risk at ceiling", filter: domain.SubscriberFilter{RiskLevel: "low"}, want: true},
		{name: "risk above ceiling", filter: domain.SubscriberFilter{RiskLevel: "Safe"}, want: false},
		{name: "risk below ceiling", filter: domain.SubscriberFilter{RiskLevel: "High"}, want: true},
		{name: "unknown risk ceiling", filter: domain.SubscriberFilter{RiskLevel: "extreme"}, want: false},
		{name: "buy tax under", filter: domain.SubscriberFilter{BuyTax: "5%"}, want: true},
		{name: "buy tax over", filter: domain.SubscriberFilter{BuyTax: "2"}, want: false},
		{name: "sell tax equal", filter: domain.SubscriberFilter{SellTax: " 5 % "}, want: true},
		{name: "sell tax over", filter: domain.SubscriberFilter{SellTax: "4.99"}, want: false},
		{name: "unparseable tax fails closed", filter: domain.SubscriberFilter{BuyTax: "ten"}, want: false},
		{name: "unparseable lp fails closed", filter: domain.SubscriberFilter{LockedLP: "lots"}, event: domain.EventNewPair, want: false},
		{name: "unknown tax passes", filter: domain.SubscriberFilter{BuyTax: "1"},
			mutate: func(tok *domain.Token) { tok.BuyTax = nil }, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := tc.event
			if event == "" {
				event = domain.EventNewToken
			}
			msg := sampleMessage(event)
			if tc.mutate != nil {
				tc.mutate(&msg.Token)
			}
			assert.Equal(t, tc.want, ApplyFilters(tc.filter, msg))
		})
	}
}

func TestFilterDecodesDashboardJSON(t *testing.T) {
	raw := `{"blockchains":["Ethereum"],"buy_tax":10,"sell_tax":"","risk_level":"Medium",
		"contract_verified":"true","classification":"all","alert_type":"new dex listing",
		"has_social":null,"locked_lp":"","display_preference":"compact"}`

	var f domain.SubscriberFilter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.True(t, ApplyFilters(f, sampleMessage(domain.EventNewPair)))
	assert.False(t, ApplyFilters(f, sampleMessage(domain.EventNewToken)))
}
