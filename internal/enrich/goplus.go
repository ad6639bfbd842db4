package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

const goplusRateLimitCode = 4029

var (
	// Any of these makes the token High risk.
	criticalFlags = []string{
		"is_honeypot",
		"honeypot_with_same_creator",
		"cannot_sell_all",
		"is_airdrop_scam",
	}
	warningFlags = []string{
		"is_mintable",
		"hidden_owner",
		"can_take_back_ownership",
		"owner_change_balance",
		"selfdestruct",
		"external_call",
		"is_proxy",
		"is_blacklisted",
		"transfer_pausable",
		"slippage_modifiable",
		"personal_slippage_modifiable",
		"trading_cooldown",
		"cannot_buy",
	}

	hundred      = decimal.NewFromInt(100)
	highTaxFloor = decimal.NewFromInt(50)
	mediumTaxCap = decimal.NewFromInt(10)
)

// GoPlusOptions parameterise the auditor.
type GoPlusOptions struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// GoPlus audits tokens with the GoPlus token security API.
type GoPlus struct {
	opts    GoPlusOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGoPlus constructs an auditor.
func NewGoPlus(opts GoPlusOptions, logger zerolog.Logger) *GoPlus {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gopluslabs.io"
	}
	return &GoPlus{
		opts:    opts,
		logger:  logger.With().Str("component", "goplus").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type goplusResponse struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Result  map[string]json.RawMessage `json:"result"`
}

type goplusToken struct {
	BuyTax         string         `json:"buy_tax"`
	SellTax        string         `json:"sell_tax"`
	OwnerAddress   string         `json:"owner_address"`
	CreatorAddress string         `json:"creator_address"`
	CreatorPercent string         `json:"creator_percent"`
	LPTotalSupply  string         `json:"lp_total_supply"`
	LPHolders      []goplusHolder `json:"lp_holders"`
}

type goplusHolder struct {
	Address  string `json:"address"`
	Percent  string `json:"percent"`
	IsLocked int    `json:"is_locked"`
}

// Audit implements Auditor.
func (g *GoPlus) Audit(ctx context.Context, chainID, address string, verified bool) (*domain.Audit, error) {
	chain, err := decimalChainID(chainID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/token_security/%s?%s", g.baseURL, chain,
		url.Values{"contract_addresses": {strings.ToLower(address)}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if g.opts.AccessToken != "" {
		req.Header.Set("Authorization", g.opts.AccessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("goplus request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read goplus response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("goplus status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed goplusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode goplus response: %w", err)
	}
	switch parsed.Code {
	case 1:
	case goplusRateLimitCode:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("goplus error %d: %s", parsed.Code, parsed.Message)
	}

	var raw json.RawMessage
	for key, entry := range parsed.Result {
		if strings.EqualFold(key, address) {
			raw = entry
			break
		}
	}
	if len(raw) == 0 {
		g.logger.Debug().Str("address", address).Msg("no audit data yet")
		return nil, nil
	}

	audit, err := buildAudit(raw, verified)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("address", address).
		Str("risk_level", string(audit.RiskLevel)).
		Strs("flags", audit.Flags).
		Msg("audit finished")
	return audit, nil
}

func buildAudit(raw json.RawMessage, verified bool) (*domain.Audit, error) {
	var tok goplusToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode goplus token: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode goplus flags: %w", err)
	}

	audit := &domain.Audit{
		BuyTax:         percentOf(tok.BuyTax),
		SellTax:        percentOf(tok.SellTax),
		OwnerAddress:   tok.OwnerAddress,
		CreatorAddress: tok.CreatorAddress,
		CreatorPercent: percentOf(tok.CreatorPercent),
		LPTotalSupply:  parseDecimal(tok.LPTotalSupply),
		Raw:            raw,
	}
	for _, h := range tok.LPHolders {
		pct, err := decimal.NewFromString(strings.TrimSpace(h.Percent))
		if err != nil {
			continue
		}
		audit.LPHolders = append(audit.LPHolders, domain.LPHolder{Address: h.Address, Percent: pct, Locked: h.IsLocked == 1})
	}

	var critical, warnings int
	for _, name := range criticalFlags {
		if flagSet(fields, name) {
			critical++
			audit.Flags = append(audit.Flags, name)
		}
	}
	for _, name := range warningFlags {
		if flagSet(fields, name) {
			warnings++
			audit.Flags = append(audit.Flags, name)
		}
	}
	sort.Strings(audit.Flags)

	tax := maxTax(audit.BuyTax, audit.SellTax)
	switch {
	case critical > 0 || tax.GreaterThanOrEqual(highTaxFloor):
		audit.RiskLevel = domain.RiskHigh
	case warnings >= 2 || tax.GreaterThan(mediumTaxCap):
		audit.RiskLevel = domain.RiskMedium
	case warnings == 1 || !verified:
		audit.RiskLevel = domain.RiskLow
	default:
		audit.RiskLevel = domain.RiskSafe
	}
	audit.IsScam = audit.RiskLevel == domain.RiskHigh
	return audit, nil
}

func flagSet(fields map[string]any, name string) bool {
	switch v := fields[name].(type) {
	case string:
		return strings.TrimSpace(v) == "1"
	case float64:
		return v == 1
	case bool:
		return v
	}
	return false
}

// percentOf converts a GoPlus fraction ("0.05") into a percentage (5).
func percentOf(v string) *decimal.Decimal {
	d := parseDecimal(v)
	if d == nil {
		return nil
	}
	pct := d.Mul(hundred)
	return &pct
}

func parseDecimal(v string) *decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil
	}
	return &d
}

func maxTax(taxes ...*decimal.Decimal) decimal.Decimal {
	out := decimal.Zero
	for _, t := range taxes {
		if t != nil && t.GreaterThan(out) {
			out = *t
		}
	}
	return out
}

var _ Auditor = (*GoPlus)(nil)
