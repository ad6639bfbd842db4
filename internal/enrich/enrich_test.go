package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-alerts/internal/domain"
)

const testAddr = "0xAbC0000000000000000000000000000000000001"

func TestEtherscanVerifiedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("chainid"))
		assert.Equal(t, "getsourcecode", q.Get("action"))
		assert.Equal(t, testAddr, q.Get("address"))
		assert.Equal(t, "key", q.Get("apikey"))
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"SourceCode":"contract T {} // https://t.me/tokenchat","ContractName":"T","CompilerVersion":"v0.8.20"}]}`)
	}))
	defer srv.Close()

	es := NewEtherscan(EtherscanOptions{BaseURL: srv.URL, APIKey: "key"}, zerolog.Nop())
	info, err := es.SourceCode(context.Background(), "0x1", testAddr)
	require.NoError(t, err)
	assert.True(t, info.Verified)
	assert.Equal(t, "T", info.ContractName)
	assert.Contains(t, info.SourceCode, "t.me/tokenchat")
}

func TestEtherscanUnverifiedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"SourceCode":"","ContractName":"","CompilerVersion":""}]}`)
	}))
	defer srv.Close()

	es := NewEtherscan(EtherscanOptions{BaseURL: srv.URL}, zerolog.Nop())
	info, err := es.SourceCode(context.Background(), "11155111", testAddr)
	require.NoError(t, err)
	assert.False(t, info.Verified)
}

func TestEtherscanRateLimit(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status body": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
		},
		"http 429": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			es := NewEtherscan(EtherscanOptions{BaseURL: srv.URL}, zerolog.Nop())
			_, err := es.SourceCode(context.Background(), "0x1", testAddr)
			assert.ErrorIs(t, err, ErrRateLimited)
		})
	}
}

func TestEtherscanOtherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
	}))
	defer srv.Close()

	es := NewEtherscan(EtherscanOptions{BaseURL: srv.URL}, zerolog.Nop())
	_, err := es.SourceCode(context.Background(), "0x1", testAddr)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)

	_, err = es.SourceCode(context.Background(), "mainnet", testAddr)
	assert.Error(t, err)
}

func goplusServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/token_security/1", r.URL.Path)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoPlusHoneypotIsHighRiskScam(t *testing.T) {
	srv := goplusServer(t, `{"code":1,"message":"OK","result":{"0xabc0000000000000000000000000000000000001":{
		"buy_tax":"0.05","sell_tax":"0.99","is_honeypot":"1","is_mintable":"1",
		"owner_address":"0x0000000000000000000000000000000000000000",
		"creator_address":"0x9999999999999999999999999999999999999999","creator_percent":"0.25",
		"lp_total_supply":"1000",
		"lp_holders":[{"address":"0x1","percent":"0.6","is_locked":1},{"address":"0x2","percent":"0.4","is_locked":0}]
	}}}`)

	gp := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())
	audit, err := gp.Audit(context.Background(), "0x1", testAddr, true)
	require.NoError(t, err)
	require.NotNil(t, audit)

	assert.Equal(t, domain.RiskHigh, audit.RiskLevel)
	assert.True(t, audit.IsScam)
	assert.Equal(t, "5", audit.BuyTax.String())
	assert.Equal(t, "99", audit.SellTax.String())
	assert.Equal(t, "25", audit.CreatorPercent.String())
	assert.Equal(t, "1000", audit.LPTotalSupply.String())
	assert.Equal(t, []string{"is_honeypot", "is_mintable"}, audit.Flags)
	require.Len(t, audit.LPHolders, 2)
	assert.True(t, audit.LPHolders[0].Locked)
	assert.Equal(t, "0.6", audit.LPHolders[0].Percent.String())
	assert.NotEmpty(t, audit.Raw)
}

func TestGoPlusRiskBuckets(t *testing.T) {
	cases := []struct {
		name     string
		entry    string
		verified bool
		want     domain.RiskLevel
	}{
		{"clean verified", `{"buy_tax":"0","sell_tax":"0"}`, true, domain.RiskSafe},
		{"clean unverified", `{"buy_tax":"0","sell_tax":"0"}`, false, domain.RiskLow},
		{"one warning", `{"is_proxy":"1"}`, true, domain.RiskLow},
		{"two warnings", `{"is_proxy":"1","hidden_owner":"1"}`, true, domain.RiskMedium},
		{"tax above ten", `{"buy_tax":"0.12"}`, true, domain.RiskMedium},
		{"tax at fifty", `{"sell_tax":"0.5"}`, true, domain.RiskHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := goplusServer(t, `{"code":1,"message":"OK","result":{"`+testAddr+`":`+tc.entry+`}}`)
			gp := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

			audit, err := gp.Audit(context.Background(), "1", testAddr, tc.verified)
			require.NoError(t, err)
			require.NotNil(t, audit)
			assert.Equal(t, tc.want, audit.RiskLevel)
			assert.Equal(t, tc.want == domain.RiskHigh, audit.IsScam)
		})
	}
}

func TestGoPlusNoDataAndRateLimit(t *testing.T) {
	srv := goplusServer(t, `{"code":1,"message":"OK","result":{}}`)
	gp := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())
	audit, err := gp.Audit(context.Background(), "0x1", testAddr, true)
	require.NoError(t, err)
	assert.Nil(t, audit)

	srv = goplusServer(t, `{"code":4029,"message":"too many requests","result":null}`)
	gp = NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())
	_, err = gp.Audit(context.Background(), "0x1", testAddr, true)
	assert.ErrorIs(t, err, ErrRateLimited)

	srv = goplusServer(t, `{"code":2000,"message":"bad request","result":null}`)
	gp = NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())
	_, err = gp.Audit(context.Background(), "0x1", testAddr, true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	got := c.Classify("Pepe Inu", "PEPEINU")
	assert.Equal(t, CategoryMemecoins, got.Category)
	assert.Equal(t, "0.65", got.Certainty.String())

	got = c.Classify("Tether USD", "USDT")
	assert.Equal(t, CategoryStablecoins, got.Category)

	got = c.Classify("AgentGPT", "AGPT")
	assert.Equal(t, CategoryAI, got.Category)
	assert.Equal(t, "0.5", got.Certainty.String())

	got = c.Classify("Something", "STH")
	assert.Equal(t, CategoryOther, got.Category)
	assert.Equal(t, "0.3", got.Certainty.String())
}

func TestHarvestSocials(t *testing.T) {
	source := `
// SPDX-License-Identifier: MIT
// OpenZeppelin Contracts (https://github.com/OpenZeppelin/openzeppelin-contracts)
/*
 * Website: https://pepetoken.io.
 * Telegram: https://t.me/pepe_portal
 * Twitter: https://x.com/pepetoken
 * Discord: https://discord.gg/abc-123
 */
pragma solidity ^0.8.20;
`
	s := HarvestSocials(source)
	assert.Equal(t, "https://pepetoken.io", s.Website)
	assert.Equal(t, "https://t.me/pepe_portal", s.Telegram)
	assert.Equal(t, "https://x.com/pepetoken", s.Twitter)
	assert.Equal(t, "https://discord.gg/abc-123", s.Discord)
	assert.True(t, s.Any())

	assert.False(t, HarvestSocials("contract A { // see https://docs.soliditylang.org/en/latest }").Any())
	assert.False(t, HarvestSocials("").Any())
}
