package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var chainNames = map[string]string{
	"0x1":      "Ethereum",
	"1":        "Ethereum",
	"0xaa36a7": "Sepolia Testnet",
	"11155111": "Sepolia Testnet",
}

// BlockchainForChain resolves a webhook chain id (hex or decimal) to the blockchain name stored on tokens.
func BlockchainForChain(chainID string) (string, bool) {
	name, ok := chainNames[strings.ToLower(strings.TrimSpace(chainID))]
	return name, ok
}

// RiskLevel is the ordinal risk bucket assigned by the security audit.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "Safe"
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ParseRiskLevel matches a risk level case-insensitively.
func ParseRiskLevel(v string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "safe":
		return RiskSafe, true
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	default:
		return "", false
	}
}

// Rank orders risk levels Safe < Low < Medium < High. Unknown levels rank -1.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskSafe:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return -1
	}
}

// TokenKey is the natural key of a token aggregate.
type TokenKey struct {
	Address    string
	Blockchain string
}

// Socials holds links harvested from verified source code.
type Socials struct {
	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Discord  string `json:"discord,omitempty"`
}

// Any reports whether at least one link is present.
func (s Socials) Any() bool {
	return s.Website != "" || s.Twitter != "" || s.Telegram != "" || s.Discord != ""
}

// LPHolder is one entry of the audit's LP holder snapshot.
type LPHolder struct {
	Address string          `json:"address"`
	Percent decimal.Decimal `json:"percent"`
	Locked  bool            `json:"is_locked"`
}

// Audit is the normalised result of a token security audit.
type Audit struct {
	BuyTax         *decimal.Decimal `json:"buy_tax,omitempty"`
	SellTax        *decimal.Decimal `json:"sell_tax,omitempty"`
	OwnerAddress   string           `json:"owner_address,omitempty"`
	CreatorAddress string           `json:"creator_address,omitempty"`
	CreatorPercent *decimal.Decimal `json:"creator_percent,omitempty"`
	LPTotalSupply  *decimal.Decimal `json:"lp_total_supply,omitempty"`
	LPHolders      []LPHolder       `json:"lp_holders,omitempty"`
	RiskLevel      RiskLevel        `json:"risk_level"`
	IsScam         bool             `json:"is_scam"`
	Flags          []string         `json:"flags,omitempty"`
	Raw            json.RawMessage  `json:"raw,omitempty"`
}

// Token is the aggregate persisted per (address, blockchain).
//
// Pointer and empty-string fields mean "not observed"; a merge never lets
// them overwrite stored values. IsScam and IsRenounced only ever go from
// false to true.
type Token struct {
	Address     string `json:"address"`
	Blockchain  string `json:"blockchain"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`

	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    *uint8 `json:"decimals,omitempty"`
	TotalSupply string `json:"total_supply,omitempty"`

	ContractVerified *bool   `json:"contract_verified,omitempty"`
	SourceCode       string  `json:"-"`
	Socials          Socials `json:"socials"`

	RiskLevel      RiskLevel        `json:"risk_level,omitempty"`
	BuyTax         *decimal.Decimal `json:"buy_tax,omitempty"`
	SellTax        *decimal.Decimal `json:"sell_tax,omitempty"`
	CreatorAddress string           `json:"creator_address,omitempty"`
	CreatorPercent *decimal.Decimal `json:"creator_percent,omitempty"`
	IsScam         bool             `json:"is_scam"`
	IsRenounced    bool             `json:"is_renounced"`

	Classification          string           `json:"classification,omitempty"`
	ClassificationCertainty *decimal.Decimal `json:"classification_certainty,omitempty"`

	DexPair  string           `json:"dex_pair,omitempty"`
	LockedLP *decimal.Decimal `json:"locked_lp,omitempty"`

	Audit *Audit `json:"-"`

	SourceCodeID  *int64 `json:"source_code_id,omitempty"`
	AuditID       *int64 `json:"audit_id,omitempty"`
	InformationID *int64 `json:"token_information_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Key returns the natural key of the token.
func (t Token) Key() TokenKey {
	return TokenKey{Address: t.Address, Blockchain: t.Blockchain}
}

// Verified reports whether source verification succeeded.
func (t Token) Verified() bool {
	return t.ContractVerified != nil && *t.ContractVerified
}

// ApplyAudit copies the audit-derived fields onto the token.
func (t *Token) ApplyAudit(a *Audit) {
	if a == nil {
		return
	}
	t.Audit = a
	t.BuyTax = a.BuyTax
	t.SellTax = a.SellTax
	t.CreatorAddress = a.CreatorAddress
	t.CreatorPercent = a.CreatorPercent
	t.RiskLevel = a.RiskLevel
	t.IsScam = t.IsScam || a.IsScam
}

// MergeToken folds an incoming observation into the stored aggregate.
// Child-record ids already on the stored record always win.
func MergeToken(stored, in Token) Token {
	out := stored
	out.Address = stored.Address
	out.Blockchain = stored.Blockchain

	mergeString(&out.ChainID, in.ChainID)
	mergeString(&out.BlockNumber, in.BlockNumber)
	mergeString(&out.Name, in.Name)
	mergeString(&out.Symbol, in.Symbol)
	mergeString(&out.TotalSupply, in.TotalSupply)
	mergeString(&out.CreatorAddress, in.CreatorAddress)
	mergeString(&out.Classification, in.Classification)
	mergeString(&out.DexPair, in.DexPair)
	if in.RiskLevel != "" {
		out.RiskLevel = in.RiskLevel
	}
	if in.Decimals != nil {
		out.Decimals = in.Decimals
	}
	if in.ContractVerified != nil {
		out.ContractVerified = in.ContractVerified
	}
	if in.BuyTax != nil {
		out.BuyTax = in.BuyTax
	}
	if in.SellTax != nil {
		out.SellTax = in.SellTax
	}
	if in.CreatorPercent != nil {
		out.CreatorPercent = in.CreatorPercent
	}
	if in.ClassificationCertainty != nil {
		out.ClassificationCertainty = in.ClassificationCertainty
	}
	if in.LockedLP != nil {
		out.LockedLP = in.LockedLP
	}

	mergeString(&out.Socials.Website, in.Socials.Website)
	mergeString(&out.Socials.Twitter, in.Socials.Twitter)
	mergeString(&out.Socials.Telegram, in.Socials.Telegram)
	mergeString(&out.Socials.Discord, in.Socials.Discord)

	out.IsScam = stored.IsScam || in.IsScam
	out.IsRenounced = stored.IsRenounced || in.IsRenounced

	if out.SourceCodeID == nil {
		out.SourceCodeID = in.SourceCodeID
	}
	if out.AuditID == nil {
		out.AuditID = in.AuditID
	}
	if out.InformationID == nil {
		out.InformationID = in.InformationID
	}
	return out
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
