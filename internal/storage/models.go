package storage

import (
	"time"

	"token-alerts/internal/domain"
)

// IngestionStat is one hourly bucket of the ingestion counters.
type IngestionStat struct {
	Bucket time.Time
	Total  int64
	Scams  int64
	Risky  int64
}

// StatBucket truncates t to the hourly bucket the counters are kept in.
func StatBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// riskCounters maps a risk level onto the (scams, risky) increments.
func riskCounters(risk domain.RiskLevel) (int64, int64) {
	switch risk {
	case domain.RiskHigh:
		return 1, 0
	case domain.RiskMedium:
		return 0, 1
	default:
		return 0, 0
	}
}
