package enrich

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	CategoryMemecoins   = "Memecoins"
	CategoryAI          = "AI"
	CategoryGaming      = "Gaming"
	CategoryDeFi        = "DeFi"
	CategoryStablecoins = "Stablecoins"
	CategoryOther       = "Other"
)

type category struct {
	name     string
	keywords []string
}

// Order matters on ties: the earlier category wins.
var categories = []category{
	{CategoryStablecoins, []string{"usd", "usdt", "usdc", "dai", "stable", "eur", "peg"}},
	{CategoryAI, []string{"ai", "gpt", "agent", "neural", "bot", "llm", "intelligence"}},
	{CategoryGaming, []string{"game", "gaming", "play", "quest", "arena", "guild", "meta", "metaverse"}},
	{CategoryDeFi, []string{"swap", "finance", "fi", "yield", "lend", "vault", "stake", "dex", "protocol"}},
	{CategoryMemecoins, []string{"pepe", "doge", "shib", "inu", "elon", "moon", "wojak", "frog", "cat", "meme", "floki", "bonk", "trump", "baby"}},
}

var (
	otherCertainty = decimal.RequireFromString("0.3")
	baseCertainty  = decimal.RequireFromString("0.5")
	stepCertainty  = decimal.RequireFromString("0.15")
	maxCertainty   = decimal.RequireFromString("0.95")
)

// KeywordClassifier is a name/symbol heuristic.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default heuristic classifier.
func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{}
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(name, symbol string) Classification {
	words := tokenize(name + " " + symbol)
	joined := strings.ToLower(strings.ReplaceAll(name+symbol, " ", ""))

	best, bestHits := CategoryOther, 0
	for _, c := range categories {
		hits := 0
		for _, kw := range c.keywords {
			if _, ok := words[kw]; ok {
				hits++
				continue
			}
			// short keywords only count as whole words
			if len(kw) > 3 && strings.Contains(joined, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c.name, hits
		}
	}

	if bestHits == 0 {
		return Classification{Category: CategoryOther, Certainty: otherCertainty}
	}
	certainty := baseCertainty.Add(stepCertainty.Mul(decimal.NewFromInt(int64(bestHits - 1))))
	if certainty.GreaterThan(maxCertainty) {
		certainty = maxCertainty
	}
	return Classification{Category: best, Certainty: certainty}
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

var _ Classifier = KeywordClassifier{}
