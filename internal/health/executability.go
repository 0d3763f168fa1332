package health

import (
	"math/big"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// Verdict is the closed set of answers to "can this order execute right now".
type Verdict string

const (
	VerdictExecutable Verdict = "EXECUTABLE"
	VerdictNotActive  Verdict = "NOT_ACTIVE"
	VerdictExpired    Verdict = "EXPIRED"
	VerdictNotStarted Verdict = "NOT_STARTED"
	VerdictInvalidHF  Verdict = "INVALID_HF"
	VerdictHFTooHigh  Verdict = "HF_TOO_HIGH"
)

// Evaluate combines stored status, the order's time window, and the
// position's current health factor into a single verdict.
//
// The check order is fixed: status, then expiry, then not-started, then HF
// parse, then HF compare. An order past its end time reports EXPIRED even
// when its HF strings are garbage.
func Evaluate(status domain.OrderStatus, startTime, endTime int64, triggerHF, currentHF string, now time.Time) Verdict {
	if status != domain.OrderStatusActive {
		return VerdictNotActive
	}

	unix := now.Unix()
	if unix > endTime {
		return VerdictExpired
	}
	if unix < startTime {
		return VerdictNotStarted
	}

	trigger, ok := parseHF(triggerHF)
	if !ok {
		return VerdictInvalidHF
	}
	current, ok := parseHF(currentHF)
	if !ok {
		return VerdictInvalidHF
	}

	// The position must be at least as distressed as the seller's trigger.
	if current.Cmp(trigger) > 0 {
		return VerdictHFTooHigh
	}

	return VerdictExecutable
}

// parseHF parses a 1e18-scaled health factor string.
func parseHF(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
