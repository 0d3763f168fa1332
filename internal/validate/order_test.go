package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

var testNow = time.Unix(1_700_000_000, 0)

func validSignature() domain.Signature {
	return domain.Signature{
		V: 27,
		R: "0x" + strings.Repeat("ab", 32),
		S: "0x" + strings.Repeat("cd", 32),
	}
}

func validFull() domain.Order {
	return domain.Order{
		Type:      domain.OrderTypeFull,
		Seller:    "0x1111111111111111111111111111111111111111",
		Debt:      "0x2222222222222222222222222222222222222222",
		DebtNonce: 1,
		StartTime: testNow.Unix() - 60,
		EndTime:   testNow.Unix() + 3600,
		TriggerHF: "1050000000000000000",
		Signature: validSignature(),
		Full: &domain.FullSellOrderPayload{
			Token:           "0x3333333333333333333333333333333333333333",
			PercentOfEquity: 9500,
		},
	}
}

func validPartial() domain.Order {
	o := validFull()
	o.Type = domain.OrderTypePartial
	o.Full = nil
	o.Partial = &domain.PartialSellOrderPayload{
		InterestRateMode: 2,
		CollateralOut: []string{
			"0x4444444444444444444444444444444444444444",
			"0x5555555555555555555555555555555555555555",
		},
		Percents:    []int64{7000, 3000},
		RepayToken:  "0x6666666666666666666666666666666666666666",
		RepayAmount: "1000000",
		Bonus:       150,
	}
	return o
}

func TestValidOrdersPass(t *testing.T) {
	for _, o := range []domain.Order{validFull(), validPartial()} {
		if v := Order(o, testNow); len(v) != 0 {
			t.Errorf("%s order: unexpected violations: %v", o.Type, v)
		}
	}
}

func TestFullOrderViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Order)
		want   string
	}{
		{"bad debt address", func(o *domain.Order) { o.Debt = "0x123" }, "debt"},
		{"bad seller address", func(o *domain.Order) { o.Seller = "nobody" }, "seller"},
		{"start after end", func(o *domain.Order) { o.StartTime = o.EndTime + 1 }, "before endTime"},
		{"end in past", func(o *domain.Order) { o.EndTime = testNow.Unix() - 10; o.StartTime = o.EndTime - 60 }, "already in the past"},
		{"start too old", func(o *domain.Order) { o.StartTime = testNow.Add(-2 * time.Hour).Unix() }, "in the past"},
		{"triggerHF not integer", func(o *domain.Order) { o.TriggerHF = "1.5e18" }, "triggerHF"},
		{"triggerHF negative", func(o *domain.Order) { o.TriggerHF = "-1" }, "triggerHF"},
		{"bad token", func(o *domain.Order) { o.Full.Token = "" }, "token"},
		{"percent zero", func(o *domain.Order) { o.Full.PercentOfEquity = 0 }, "percentOfEquity"},
		{"percent too high", func(o *domain.Order) { o.Full.PercentOfEquity = 10001 }, "percentOfEquity"},
		{"missing payload", func(o *domain.Order) { o.Full = nil }, "payload is required"},
		{"both payloads", func(o *domain.Order) { o.Partial = validPartial().Partial }, "got both"},
		{"bad v", func(o *domain.Order) { o.Signature.V = 1 }, "signature v"},
		{"short r", func(o *domain.Order) { o.Signature.R = "0xabcd" }, "signature r"},
		{"non-hex s", func(o *domain.Order) { o.Signature.S = "0x" + strings.Repeat("zz", 32) }, "signature s"},
	}

	for _, tc := range cases {
		o := validFull()
		tc.mutate(&o)
		violations := Order(o, testNow)
		if len(violations) == 0 {
			t.Errorf("%s: expected a violation", tc.name)
			continue
		}
		found := false
		for _, v := range violations {
			if strings.Contains(v, tc.want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s: no violation mentioning %q in %v", tc.name, tc.want, violations)
		}
	}
}

func TestPartialOrderViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Order)
		want   string
	}{
		{"empty collateral list", func(o *domain.Order) { o.Partial.CollateralOut = nil; o.Partial.Percents = nil }, "collateralOut"},
		{"bad collateral address", func(o *domain.Order) { o.Partial.CollateralOut[1] = "0xnope" }, "collateralOut[1]"},
		{"length mismatch", func(o *domain.Order) { o.Partial.Percents = []int64{10000} }, "must match"},
		{"percent out of range", func(o *domain.Order) { o.Partial.Percents = []int64{10001, -1} }, "percents[0]"},
		{"sum not 10000", func(o *domain.Order) { o.Partial.Percents = []int64{5000, 4000} }, "sum to exactly 10000"},
		{"bad repay token", func(o *domain.Order) { o.Partial.RepayToken = "usdc" }, "repayToken"},
		{"repay amount negative", func(o *domain.Order) { o.Partial.RepayAmount = "-5" }, "repayAmount"},
		{"repay amount not integer", func(o *domain.Order) { o.Partial.RepayAmount = "1.5" }, "repayAmount"},
		{"bonus out of range", func(o *domain.Order) { o.Partial.Bonus = 10001 }, "bonus"},
		{"bad rate mode", func(o *domain.Order) { o.Partial.InterestRateMode = 3 }, "interestRateMode"},
	}

	for _, tc := range cases {
		o := validPartial()
		tc.mutate(&o)
		violations := Order(o, testNow)
		found := false
		for _, v := range violations {
			if strings.Contains(v, tc.want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s: no violation mentioning %q in %v", tc.name, tc.want, violations)
		}
	}
}

// All broken fields must be reported together, not just the first.
func TestAllViolationsReported(t *testing.T) {
	o := validFull()
	o.Debt = "bad"
	o.TriggerHF = "bad"
	o.Full.PercentOfEquity = 0
	o.Signature.V = 99

	violations := Order(o, testNow)
	if len(violations) < 4 {
		t.Fatalf("expected at least 4 violations, got %d: %v", len(violations), violations)
	}
}
