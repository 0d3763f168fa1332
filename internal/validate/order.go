// Package validate performs structural and semantic validation of unsigned
// sell-order payloads, independent of signature verification. Every rule is
// checked and every violation reported, so callers can surface one complete
// diagnostic instead of a first-failure ping-pong.
package validate

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// StartTimeGraceWindow is how far in the past an order's start time may lie
// before admission rejects it. Matches the contract's tolerance.
const StartTimeGraceWindow = time.Hour

// Order checks the given order against all rules for its type and returns
// the full list of violations. An empty slice means the order is valid.
func Order(o domain.Order, now time.Time) []string {
	var violations []string

	switch o.Type {
	case domain.OrderTypeFull, domain.OrderTypePartial:
	default:
		violations = append(violations, fmt.Sprintf("orderType must be FULL or PARTIAL, got %q", o.Type))
	}

	if o.Full != nil && o.Partial != nil {
		violations = append(violations, "exactly one of fullSellOrder and partialSellOrder must be set, got both")
	}

	violations = append(violations, titleRules(o, now)...)
	violations = append(violations, signatureShapeRules(o.Signature)...)

	switch o.Type {
	case domain.OrderTypeFull:
		if o.Full == nil {
			violations = append(violations, "fullSellOrder payload is required for a FULL order")
		} else {
			violations = append(violations, fullRules(*o.Full)...)
		}
	case domain.OrderTypePartial:
		if o.Partial == nil {
			violations = append(violations, "partialSellOrder payload is required for a PARTIAL order")
		} else {
			violations = append(violations, partialRules(*o.Partial)...)
		}
	}

	return violations
}

// titleRules checks the fields shared by both order types.
func titleRules(o domain.Order, now time.Time) []string {
	var violations []string

	if !common.IsHexAddress(o.Seller) {
		violations = append(violations, fmt.Sprintf("seller %q is not a valid address", o.Seller))
	}
	if !common.IsHexAddress(o.Debt) {
		violations = append(violations, fmt.Sprintf("debt %q is not a valid address", o.Debt))
	}

	if o.StartTime >= o.EndTime {
		violations = append(violations, fmt.Sprintf("startTime %d must be before endTime %d", o.StartTime, o.EndTime))
	}
	if o.EndTime < now.Unix() {
		violations = append(violations, fmt.Sprintf("endTime %d is already in the past", o.EndTime))
	}
	if o.StartTime < now.Add(-StartTimeGraceWindow).Unix() {
		violations = append(violations, fmt.Sprintf("startTime %d is more than %s in the past", o.StartTime, StartTimeGraceWindow))
	}

	if !isNonNegativeInteger(o.TriggerHF) {
		violations = append(violations, fmt.Sprintf("triggerHF %q must be a non-negative integer string", o.TriggerHF))
	}

	return violations
}

func fullRules(p domain.FullSellOrderPayload) []string {
	var violations []string

	if !common.IsHexAddress(p.Token) {
		violations = append(violations, fmt.Sprintf("token %q is not a valid address", p.Token))
	}
	if p.PercentOfEquity <= 0 || p.PercentOfEquity > 10000 {
		violations = append(violations, fmt.Sprintf("percentOfEquity %d must be in (0, 10000] basis points", p.PercentOfEquity))
	}

	return violations
}

func partialRules(p domain.PartialSellOrderPayload) []string {
	var violations []string

	if len(p.CollateralOut) == 0 {
		violations = append(violations, "collateralOut must not be empty")
	}
	for i, addr := range p.CollateralOut {
		if !common.IsHexAddress(addr) {
			violations = append(violations, fmt.Sprintf("collateralOut[%d] %q is not a valid address", i, addr))
		}
	}

	if len(p.Percents) != len(p.CollateralOut) {
		violations = append(violations, fmt.Sprintf("percents length %d must match collateralOut length %d", len(p.Percents), len(p.CollateralOut)))
	}
	var percentSum int64
	for i, pct := range p.Percents {
		if pct < 0 || pct > 10000 {
			violations = append(violations, fmt.Sprintf("percents[%d] %d must be in [0, 10000]", i, pct))
		}
		percentSum += pct
	}
	if len(p.Percents) > 0 && percentSum != 10000 {
		violations = append(violations, fmt.Sprintf("percents must sum to exactly 10000, got %d", percentSum))
	}

	if !common.IsHexAddress(p.RepayToken) {
		violations = append(violations, fmt.Sprintf("repayToken %q is not a valid address", p.RepayToken))
	}
	if !isNonNegativeInteger(p.RepayAmount) {
		violations = append(violations, fmt.Sprintf("repayAmount %q must be a non-negative integer string", p.RepayAmount))
	}

	if p.Bonus < 0 || p.Bonus > 10000 {
		violations = append(violations, fmt.Sprintf("bonus %d must be in [0, 10000]", p.Bonus))
	}
	if p.InterestRateMode != 1 && p.InterestRateMode != 2 {
		violations = append(violations, fmt.Sprintf("interestRateMode %d must be 1 (stable) or 2 (variable)", p.InterestRateMode))
	}

	return violations
}

// signatureShapeRules checks the wire shape of the signature components. It
// does not verify the signature; that is the codec's job.
func signatureShapeRules(s domain.Signature) []string {
	var violations []string

	if s.V != 27 && s.V != 28 {
		violations = append(violations, fmt.Sprintf("signature v must be 27 or 28, got %d", s.V))
	}
	if !isHash32(s.R) {
		violations = append(violations, "signature r must be a 32-byte hex string")
	}
	if !isHash32(s.S) {
		violations = append(violations, "signature s must be a 32-byte hex string")
	}

	return violations
}

// isNonNegativeInteger reports whether s parses as a base-10 integer >= 0.
func isNonNegativeInteger(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0
}

// isHash32 reports whether s is a 0x-prefixed 64-digit hex string.
func isHash32(s string) bool {
	if len(s) != 66 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
