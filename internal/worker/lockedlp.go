package worker

import (
	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SumLockedLP returns the locked share of LP supply in percent: the larger of
// the locked holders in the audit snapshot and this lock's amount over the LP
// total supply. Zero when neither is usable.
func SumLockedLP(audit *domain.Audit, lock *domain.LockDetails) decimal.Decimal {
	if audit == nil {
		return decimal.Zero
	}

	fromHolders := decimal.Zero
	for _, h := range audit.LPHolders {
		if h.Locked {
			fromHolders = fromHolders.Add(h.Percent)
		}
	}
	fromHolders = fromHolders.Mul(hundred)

	fromLock := decimal.Zero
	if lock != nil && audit.LPTotalSupply != nil && audit.LPTotalSupply.IsPositive() {
		fromLock = lock.Amount.Div(*audit.LPTotalSupply).Mul(hundred)
	}

	return decimal.Max(fromHolders, fromLock)
}
