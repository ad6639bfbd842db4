package worker

import (
	"fmt"
	"strings"

	"token-alerts/internal/domain"
)

// Status is the terminal state of one processing attempt.
type Status int

const (
	StatusProcessed Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is what Process returns. Failed results carry Err and go to the retry queue.
type Result struct {
	Status Status
	Reason string
	Err    error
}

func processed(reason string) Result {
	return Result{Status: StatusProcessed, Reason: reason}
}

func skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Reason: err.Error(), Err: err}
}

// ReverifyPolicy names the event types on which a token stored as unverified
// gets its source re-fetched.
type ReverifyPolicy map[domain.EventType]struct{}

// DefaultReverifyOn is used when no policy is configured.
var DefaultReverifyOn = []string{string(domain.EventNewPair), string(domain.EventLockLP)}

// NewReverifyPolicy parses event type names.
func NewReverifyPolicy(types []string) (ReverifyPolicy, error) {
	p := make(ReverifyPolicy, len(types))
	for _, raw := range types {
		t, ok := domain.ParseEventType(strings.TrimSpace(raw))
		if !ok {
			return nil, fmt.Errorf("reverify policy: unknown event type %q", raw)
		}
		p[t] = struct{}{}
	}
	return p, nil
}

// Applies reports whether stored should be re-verified while handling eventType.
func (p ReverifyPolicy) Applies(eventType domain.EventType, stored domain.Token) bool {
	if _, ok := p[eventType]; !ok {
		return false
	}
	return !stored.Verified()
}
