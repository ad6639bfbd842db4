package notify

import (
	"strings"

	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

const (
	alertAll        = "all"
	alertNewTGE     = "new tge"
	alertDexListing = "new dex listing"

	classExcludeMemecoins = "exclude memecoins"
	classMemecoins        = "memecoins"
)

// ApplyFilters reports whether msg should be delivered to a subscriber with
// filter f. Blank fields do not constrain. A filter value that cannot be
// parsed never matches.
func ApplyFilters(f domain.SubscriberFilter, msg domain.NotificationMessage) bool {
	tok := msg.Token
	alertType := strings.ToLower(strings.TrimSpace(f.AlertType))

	if len(f.Blockchains) > 0 && tok.Blockchain != "" && !containsFold(f.Blockchains, tok.Blockchain) {
		return false
	}

	if bool(f.HasSocial) && !tok.Socials.Any() {
		return false
	}

	if !matchAlertType(alertType, msg.EventType) {
		return false
	}

	// no LP exists yet for a fresh deployment
	if msg.EventType != domain.EventNewToken && f.LockedLP.IsSet() && alertType != alertNewTGE {
		floor, err := f.LockedLP.Decimal()
		if err != nil {
			return false
		}
		locked := decimal.Zero
		if tok.LockedLP != nil {
			locked = *tok.LockedLP
		}
		if locked.LessThan(floor) {
			return false
		}
	}

	if !matchClassification(f.Classification, tok.Classification) {
		return false
	}

	if bool(f.ContractVerified) && !tok.Verified() {
		return false
	}

	if strings.TrimSpace(f.RiskLevel) != "" {
		ceiling, ok := domain.ParseRiskLevel(f.RiskLevel)
		if !ok {
			return false
		}
		if tok.RiskLevel.Rank() > ceiling.Rank() {
			return false
		}
	}

	if !underCeiling(f.BuyTax, tok.BuyTax) || !underCeiling(f.SellTax, tok.SellTax) {
		return false
	}
	return true
}

func matchAlertType(alertType string, event domain.EventType) bool {
	switch alertType {
	case "", alertAll:
		return true
	case alertNewTGE:
		return event == domain.EventNewToken
	case alertDexListing:
		return event == domain.EventNewPair || event == domain.EventLockLP
	default:
		return alertType == string(event)
	}
}

func matchClassification(filter, got string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	got = strings.ToLower(strings.TrimSpace(got))
	switch filter {
	case "", alertAll:
		return true
	case classExcludeMemecoins:
		return got != classMemecoins
	default:
		return filter == got
	}
}

// underCeiling passes when the ceiling is blank or the tax is unknown.
func underCeiling(ceiling domain.FilterValue, tax *decimal.Decimal) bool {
	if !ceiling.IsSet() {
		return true
	}
	max, err := ceiling.Decimal()
	if err != nil {
		return false
	}
	if tax == nil {
		return true
	}
	return !tax.GreaterThan(max)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
