package webhook

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"token-alerts/internal/domain"
)

// ClassifierOptions carry the signatures used to recognise events.
type ClassifierOptions struct {
	LockABIName               string
	LockSelector              string
	OwnershipTransferredTopic string
	PairCreatedTopic          string
	BurnAddresses             []string
}

// Classifier maps payloads to event types.
type Classifier struct {
	opts ClassifierOptions
	burn map[string]struct{}
}

// NewClassifier builds a classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	return &Classifier{opts: opts, burn: addressSet(opts.BurnAddresses)}
}

// Classify evaluates, in order: a nonzero LP lock call, an ownership transfer
// (renounced when the new owner is a burn address), a pair creation.
func (c *Classifier) Classify(p Payload) domain.EventType {
	if c.isLock(p) {
		return domain.EventLockLP
	}
	if len(p.Logs) == 0 {
		return domain.EventUnknown
	}

	first := p.Logs[0]
	switch {
	case c.opts.OwnershipTransferredTopic != "" && strings.EqualFold(first.Topic0, c.opts.OwnershipTransferredTopic):
		if first.Topic2 != "" && c.IsBurnAddress(common.HexToAddress(first.Topic2).Hex()) {
			return domain.EventOwnershipRenounced
		}
		return domain.EventNewToken
	case c.opts.PairCreatedTopic != "" && strings.EqualFold(first.Topic0, c.opts.PairCreatedTopic):
		return domain.EventNewPair
	default:
		return domain.EventUnknown
	}
}

// IsBurnAddress reports whether addr is one of the configured burn addresses.
func (c *Classifier) IsBurnAddress(addr string) bool {
	_, ok := c.burn[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

func (c *Classifier) isLock(p Payload) bool {
	if len(p.ABI) == 0 || c.opts.LockABIName == "" || p.ABI[0].Name != c.opts.LockABIName {
		return false
	}
	if len(p.Txs) == 0 || !HasSelector(p.Txs[0].Input, c.opts.LockSelector) {
		return false
	}
	lock, err := DecodeLockInput(p.Txs[0].Input)
	if err != nil {
		return false
	}
	return lock.RawAmount != "0"
}
