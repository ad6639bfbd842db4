package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FilterValue is a numeric filter field. Dashboards store these as numbers,
// strings ("10", "10%") or blanks, so the raw text is kept and parsed lazily.
type FilterValue string

// UnmarshalJSON accepts numbers, strings and null.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FilterValue(s)
		return nil
	}
	*v = FilterValue(data)
	return nil
}

// IsSet reports whether the field constrains anything.
func (v FilterValue) IsSet() bool {
	return strings.TrimSpace(string(v)) != ""
}

// Decimal parses the value, tolerating a trailing percent sign.
func (v FilterValue) Decimal() (decimal.Decimal, error) {
	return ParsePercent(string(v))
}

// ParsePercent parses "12.5", "12.5%" and " 12.5 % " alike.
func ParsePercent(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse percent %q: %w", s, err)
	}
	return d, nil
}

// FilterFlag is a boolean filter field that may arrive as a bool, a string or a blank.
type FilterFlag bool

// UnmarshalJSON accepts true/false, "true"/"false", "" and null.
func (f *FilterFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*f = false
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = false
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse flag %q: %w", s, err)
		}
		*f = FilterFlag(b)
		return nil
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*f = FilterFlag(b)
		return nil
	}
}

// SubscriberFilter is the per-recipient predicate record. Blank fields do not constrain.
type SubscriberFilter struct {
	Blockchains       []string    `json:"blockchains,omitempty"`
	BuyTax            FilterValue `json:"buy_tax,omitempty"`
	SellTax           FilterValue `json:"sell_tax,omitempty"`
	RiskLevel         string      `json:"risk_level,omitempty"`
	ContractVerified  FilterFlag  `json:"contract_verified,omitempty"`
	Classification    string      `json:"classification,omitempty"`
	AlertType         string      `json:"alert_type,omitempty"`
	HasSocial         FilterFlag  `json:"has_social,omitempty"`
	LockedLP          FilterValue `json:"locked_lp,omitempty"`
	DisplayPreference string      `json:"display_preference,omitempty"`
}

// Subscriber is a delivery address plus its filter.
type Subscriber struct {
	ID     string           `json:"id"`
	ChatID string           `json:"chat_id"`
	Filter SubscriberFilter `json:"filters"`
}
