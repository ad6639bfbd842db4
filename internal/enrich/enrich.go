package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"token-alerts/internal/domain"
)

// ErrRateLimited marks a collaborator response that asked us to slow down.
// Callers retry these inline before failing the job.
var ErrRateLimited = errors.New("enrich: rate limited")

// SourceInfo is the outcome of a source verification lookup.
type SourceInfo struct {
	Verified     bool
	SourceCode   string
	ContractName string
	Compiler     string
}

// SourceVerifier fetches verified contract source.
type SourceVerifier interface {
	SourceCode(ctx context.Context, chainID, address string) (SourceInfo, error)
}

// Auditor runs a security audit. A nil audit with a nil error means the
// auditor has no data for the token yet.
type Auditor interface {
	Audit(ctx context.Context, chainID, address string, verified bool) (*domain.Audit, error)
}

// Classification is the category guess for a token.
type Classification struct {
	Category  string
	Certainty decimal.Decimal
}

// Classifier guesses a token category from its name and symbol.
type Classifier interface {
	Classify(name, symbol string) Classification
}

func decimalChainID(chainID string) (string, error) {
	n, err := strconv.ParseUint(strings.ToLower(strings.TrimSpace(chainID)), 0, 64)
	if err != nil || n == 0 {
		return "", fmt.Errorf("invalid chain id %q", chainID)
	}
	return strconv.FormatUint(n, 10), nil
}
