package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies how a webhook payload was classified.
type EventType string

const (
	EventNewToken           EventType = "new_token"
	EventNewPair            EventType = "new_pair"
	EventLockLP             EventType = "lock_lp"
	EventOwnershipRenounced EventType = "ownership_renounced"
	EventUnknown            EventType = "unknown"
)

// ParseEventType maps a raw string onto a known event type.
func ParseEventType(v string) (EventType, bool) {
	switch t := EventType(v); t {
	case EventNewToken, EventNewPair, EventLockLP, EventOwnershipRenounced:
		return t, true
	default:
		return EventUnknown, false
	}
}

// LockDetails carries the decoded arguments of an LP lock transaction.
type LockDetails struct {
	LPToken    string          `json:"lp_token"`
	RawAmount  string          `json:"raw_amount"`
	Amount     decimal.Decimal `json:"amount"`
	UnlockTime int64           `json:"unlock_time"`
	TxHash     string          `json:"transaction_hash,omitempty"`
	Locker     string          `json:"locker,omitempty"`
	Owner      string          `json:"user,omitempty"`
}

// Job is the unit of work carried by the durable queue.
// EventID never changes once assigned and RetryCount only grows.
type Job struct {
	EventID      string          `json:"event_id"`
	EventType    EventType       `json:"event_type"`
	ChainID      string          `json:"chain_id"`
	BlockNumber  string          `json:"block_number,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
	Address      string          `json:"address,omitempty"`
	TokenAddress string          `json:"token_address,omitempty"`
	PairAddress  string          `json:"pair_address,omitempty"`
	Lock         *LockDetails    `json:"lock,omitempty"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
	RetryCount   int             `json:"retry_count"`
	LastError    string          `json:"last_error,omitempty"`
	LastRetryAt  *time.Time      `json:"last_retry_at,omitempty"`
}

// Target returns the token address the job is about.
func (j Job) Target() string {
	if j.TokenAddress != "" {
		return j.TokenAddress
	}
	return j.Address
}

// Pair returns the pair/LP address the job refers to, if any.
func (j Job) Pair() string {
	if j.PairAddress != "" {
		return j.PairAddress
	}
	if j.Lock != nil {
		return j.Lock.LPToken
	}
	return ""
}

// NotificationMessage is the payload handed from the worker to the fanout stage.
type NotificationMessage struct {
	EventType EventType `json:"event_type"`
	Token     Token     `json:"token_data"`
}
